package analyzer

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"txfix/pkg/types"
)

// AddressFromScript derives a Bitcoin address from a scriptPubKey.
// Returns "" if the script type doesn't have an address (e.g., OP_RETURN, unknown)
func AddressFromScript(scriptPubkey []byte, netParams *chaincfg.Params) string {
	var addr btcutil.Address
	var err error

	switch ClassifyOutputScript(scriptPubkey) {
	case types.ScriptP2PKH:
		// Extract 20-byte hash (bytes 3-22)
		addr, err = btcutil.NewAddressPubKeyHash(scriptPubkey[3:23], netParams)

	case types.ScriptP2SH:
		// Extract 20-byte hash (bytes 2-21)
		addr, err = btcutil.NewAddressScriptHashFromHash(scriptPubkey[2:22], netParams)

	case types.ScriptP2WPKH:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(scriptPubkey[2:22], netParams)

	case types.ScriptP2WSH:
		addr, err = btcutil.NewAddressWitnessScriptHash(scriptPubkey[2:34], netParams)

	case types.ScriptP2TR:
		addr, err = btcutil.NewAddressTaproot(scriptPubkey[2:34], netParams)

	case types.ScriptUnknown, types.ScriptP2PK, types.ScriptMultisig,
		types.ScriptOpReturn, types.ScriptAnchor:
		return ""
	}

	if err != nil || addr == nil {
		return ""
	}
	return addr.EncodeAddress()
}

// ScriptForAddress decodes an address for the given network and returns its
// output script.
func ScriptForAddress(address string, netParams *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, netParams)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if !addr.IsForNet(netParams) {
		return nil, fmt.Errorf("address %q is not for network %s", address, netParams.Name)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("script for address %q: %w", address, err)
	}
	return script, nil
}

// IsNestedWitnessProgram reports whether a redeem script is a version 0
// witness program, i.e. the input is P2SH-wrapped SegWit.
func IsNestedWitnessProgram(redeemScript []byte) bool {
	if !txscript.IsWitnessProgram(redeemScript) {
		return false
	}
	version, _, err := txscript.ExtractWitnessProgramInfo(redeemScript)
	return err == nil && version == 0
}
