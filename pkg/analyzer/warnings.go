package analyzer

import (
	"github.com/btcsuite/btcd/wire"

	"txfix/pkg/types"
)

// GenerateWarnings creates the warning array for a built transaction
func GenerateWarnings(feeSats int64, feeRate float64, tx *wire.MsgTx) []types.Warning {
	warnings := make([]types.Warning, 0)

	// HIGH_FEE: fee > 1M sats OR fee rate > 200 sat/vB
	if feeSats > 1000000 || feeRate > 200 {
		warnings = append(warnings, types.Warning{Code: "HIGH_FEE"})
	}

	// DUST_OUTPUT: any non-OP_RETURN output below its dust limit
	for _, out := range tx.TxOut {
		st := ClassifyOutputScript(out.PkScript)
		if st != types.ScriptOpReturn && out.Value < DustLimit(st) {
			warnings = append(warnings, types.Warning{Code: "DUST_OUTPUT"})
			break
		}
	}

	// UNKNOWN_OUTPUT_SCRIPT: any output has unknown script type
	for _, out := range tx.TxOut {
		if ClassifyOutputScript(out.PkScript) == types.ScriptUnknown {
			warnings = append(warnings, types.Warning{Code: "UNKNOWN_OUTPUT_SCRIPT"})
			break
		}
	}

	// RBF_SIGNALING
	sequences := make([]uint32, len(tx.TxIn))
	for i, in := range tx.TxIn {
		sequences[i] = in.Sequence
	}
	if IsRBFSignaling(sequences) {
		warnings = append(warnings, types.Warning{Code: "RBF_SIGNALING"})
	}

	return warnings
}
