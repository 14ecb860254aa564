package types

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network selects the chain parameters used for addresses and defaults.
type Network string

const (
	Mainnet  Network = "mainnet"
	Testnet  Network = "testnet"
	Testnet4 Network = "testnet4"
	Signet   Network = "signet"
	Regtest  Network = "regtest"
)

// ParseNetwork validates a network name. The empty string means mainnet.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case "":
		return Mainnet, nil
	case Mainnet, Testnet, Testnet4, Signet, Regtest:
		return Network(s), nil
	}
	return "", fmt.Errorf("unknown network %q", s)
}

// Params returns the chain parameters for the network. testnet4 shares
// testnet3's address encoding.
func (n Network) Params() *chaincfg.Params {
	switch n {
	case Testnet, Testnet4:
		return &chaincfg.TestNet3Params
	case Signet:
		return &chaincfg.SigNetParams
	case Regtest:
		return &chaincfg.RegressionNetParams
	case Mainnet:
		return &chaincfg.MainNetParams
	}
	return &chaincfg.MainNetParams
}
