package analyzer

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"

	"txfix/pkg/types"
)

// Transaction weight components, in weight units. Input figures assume a
// 72-byte DER signature and a 33-byte compressed pubkey.
const (
	// version + locktime + input count + output count
	TxOverheadWeight = (4 + 4 + 1 + 1) * blockchain.WitnessScaleFactor
	// segwit marker + flag
	WitnessHeaderWeight = 2

	// outpoint + sequence + scriptSig length
	txInBaseSize = 32 + 4 + 4 + 1

	p2pkhSigScriptSize = 1 + 72 + 1 + 33
	p2wpkhWitnessSize  = 1 + 1 + 72 + 1 + 33
	p2trWitnessSize    = 1 + 1 + 64
	// 2-of-3 multisig witness: count, empty item, two sigs, script push
	p2wshWitnessSize = 1 + 1 + 2*(1+72) + 1 + 105
	// scriptSig of a P2SH-P2WPKH input: push of 0014{20 bytes}
	nestedP2WPKHSigScriptSize = 1 + 22
	anchorWitnessSize         = 1
)

// DustLimit returns the smallest relayable value for an output of the given
// script type, at the default 3 sat/vB dust relay fee.
func DustLimit(t types.ScriptType) int64 {
	switch t {
	case types.ScriptP2PKH:
		return 546
	case types.ScriptP2SH:
		return 540
	case types.ScriptP2WPKH:
		return 294
	case types.ScriptP2WSH, types.ScriptP2TR:
		return 330
	case types.ScriptAnchor, types.ScriptOpReturn:
		return 0
	case types.ScriptUnknown, types.ScriptP2PK, types.ScriptMultisig:
		return 546
	}
	return 546
}

// InputWeight estimates the signed weight of an input spending an output of
// the given type. Unknown types are assumed to be P2PKH, the largest common
// single-key spend.
func InputWeight(t types.ScriptType) int64 {
	base := int64(txInBaseSize * blockchain.WitnessScaleFactor)
	switch t {
	case types.ScriptP2WPKH:
		return base + p2wpkhWitnessSize
	case types.ScriptP2TR:
		return base + p2trWitnessSize
	case types.ScriptP2WSH:
		return base + p2wshWitnessSize
	case types.ScriptAnchor:
		return base + anchorWitnessSize
	case types.ScriptP2SH:
		// Nested P2WPKH is by far the most common P2SH spend.
		return base + nestedP2WPKHSigScriptSize*blockchain.WitnessScaleFactor + p2wpkhWitnessSize
	case types.ScriptP2PK:
		return base + (1+72)*blockchain.WitnessScaleFactor
	case types.ScriptP2PKH, types.ScriptMultisig, types.ScriptOpReturn, types.ScriptUnknown:
		return base + p2pkhSigScriptSize*blockchain.WitnessScaleFactor
	}
	return base + p2pkhSigScriptSize*blockchain.WitnessScaleFactor
}

// OutputWeight is the weight of an output paying to pkScript.
func OutputWeight(pkScript []byte) int64 {
	out := wire.TxOut{PkScript: pkScript}
	return int64(out.SerializeSize() * blockchain.WitnessScaleFactor)
}

// SpendsWitness reports whether spending an output of type t puts data in
// the witness, which adds the segwit header to the transaction.
func SpendsWitness(t types.ScriptType) bool {
	return t.IsSegWit() || t == types.ScriptP2SH
}
