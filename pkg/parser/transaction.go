package parser

import (
	"bytes"
	"errors"
	"fmt"

	"txfix/pkg/analyzer"
	"txfix/pkg/types"
	"txfix/pkg/utils"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrDuplicatePrevout is returned when a fixture lists an outpoint twice
	ErrDuplicatePrevout = errors.New("duplicate prevout")
	// ErrMissingPrevout is returned when an input's spent output is not in the fixture
	ErrMissingPrevout = errors.New("missing prevout")
)

// DecodeRawTx deserializes a hex-encoded transaction, with or without witness data.
func DecodeRawTx(rawHex string) (*wire.MsgTx, error) {
	raw, err := utils.HexToBytes(rawHex)
	if err != nil {
		return nil, fmt.Errorf("invalid raw tx hex: %w", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return tx, nil
}

// ParseTransaction builds the provider's transaction model from a raw
// transaction and the outputs it spends, so a diagnosis or fee bump can run
// without a data provider.
func ParseTransaction(fixture types.Fixture) (*types.Transaction, error) {
	network, err := types.ParseNetwork(fixture.Network)
	if err != nil {
		return nil, err
	}
	params := network.Params()

	tx, err := DecodeRawTx(fixture.RawTx)
	if err != nil {
		return nil, err
	}

	// Build prevout map: (txid, vout) -> prevout
	prevoutMap := make(map[wire.OutPoint]types.PrevoutInput, len(fixture.Prevouts))
	for _, p := range fixture.Prevouts {
		op, err := outPoint(p.Txid, p.Vout)
		if err != nil {
			return nil, err
		}
		if _, exists := prevoutMap[op]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePrevout, op)
		}
		prevoutMap[op] = p
	}

	// Weight per BIP141
	baseSize := tx.SerializeSizeStripped()
	totalSize := tx.SerializeSize()

	out := &types.Transaction{
		Txid:     tx.TxHash().String(),
		Version:  tx.Version,
		Locktime: tx.LockTime,
		Size:     totalSize,
		Weight:   baseSize*3 + totalSize,
		Vin:      make([]types.Vin, 0, len(tx.TxIn)),
		Vout:     make([]types.Vout, 0, len(tx.TxOut)),
	}
	if fixture.Status != nil {
		out.Status = *fixture.Status
	}

	var totalIn, totalOut int64
	coinbase := false
	for _, txIn := range tx.TxIn {
		op := txIn.PreviousOutPoint
		in := types.Vin{
			Txid:      op.Hash.String(),
			Vout:      op.Index,
			ScriptSig: utils.BytesToHex(txIn.SignatureScript),
			Sequence:  txIn.Sequence,
		}
		for _, item := range txIn.Witness {
			in.Witness = append(in.Witness, utils.BytesToHex(item))
		}

		// Coinbase inputs have a null outpoint and spend nothing
		if op.Index == wire.MaxPrevOutIndex && op.Hash == (chainhash.Hash{}) {
			in.IsCoinbase = true
			coinbase = true
			out.Vin = append(out.Vin, in)
			continue
		}

		p, ok := prevoutMap[op]
		if !ok {
			return nil, fmt.Errorf("%w for input %s", ErrMissingPrevout, op)
		}
		prev, err := vout(p.ScriptPubkeyHex, p.ValueSats, params)
		if err != nil {
			return nil, fmt.Errorf("prevout %s: %w", op, err)
		}
		in.Prevout = &prev
		totalIn += p.ValueSats
		out.Vin = append(out.Vin, in)
	}

	for _, txOut := range tx.TxOut {
		o, err := vout(utils.BytesToHex(txOut.PkScript), txOut.Value, params)
		if err != nil {
			return nil, err
		}
		totalOut += txOut.Value
		out.Vout = append(out.Vout, o)
	}

	if !coinbase {
		out.Fee = totalIn - totalOut
		if out.Fee < 0 {
			return nil, fmt.Errorf("outputs (%d) exceed inputs (%d)", totalOut, totalIn)
		}
	}

	return out, nil
}

func outPoint(txid string, index uint32) (wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("invalid prevout txid %q: %w", txid, err)
	}
	return *wire.NewOutPoint(hash, index), nil
}

func vout(scriptHex string, value int64, params *chaincfg.Params) (types.Vout, error) {
	script, err := utils.HexToBytes(scriptHex)
	if err != nil {
		return types.Vout{}, fmt.Errorf("invalid script hex: %w", err)
	}
	return types.Vout{
		ScriptPubKey:        scriptHex,
		ScriptPubKeyType:    analyzer.ClassifyOutputScript(script),
		ScriptPubKeyAddress: analyzer.AddressFromScript(script, params),
		Value:               value,
	}, nil
}
