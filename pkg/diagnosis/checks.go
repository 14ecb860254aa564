package diagnosis

import (
	"fmt"

	"txfix/pkg/analyzer"
	"txfix/pkg/fees"
	"txfix/pkg/types"
)

// Check ids, in emission order.
const (
	CheckConfirmation = "confirmation-status"
	CheckRBF          = "rbf-signaling"
	CheckCPFP         = "cpfp-feasibility"
	CheckFee          = "fee-analysis"
	CheckPosition     = "mempool-position"
	CheckWait         = "wait-estimate"
)

func result(id string, status types.CheckStatus, label, detail string) types.CheckResult {
	return types.CheckResult{
		ID:     id,
		Label:  label,
		Detail: detail,
		Status: status,
		Icon:   types.IconFor(status),
	}
}

// CheckConfirmationStatus reports whether tx has been mined.
func CheckConfirmationStatus(tx *types.Transaction) types.CheckResult {
	if tx.Status.Confirmed {
		return result(CheckConfirmation, types.StatusPass,
			"Transaction confirmed",
			"Block #"+fees.FormatThousands(tx.Status.BlockHeight))
	}
	return result(CheckConfirmation, types.StatusInfo,
		"Transaction found in mempool",
		"Unconfirmed - awaiting inclusion in a block")
}

// CheckRBFSignaling inspects input sequences for BIP125 opt-in.
func CheckRBFSignaling(tx *types.Transaction) types.CheckResult {
	if len(tx.Vin) == 0 {
		return result(CheckRBF, types.StatusWarn,
			"No inputs",
			"Transaction has no inputs - cannot determine RBF signaling")
	}

	sequences := make([]uint32, len(tx.Vin))
	for i, in := range tx.Vin {
		sequences[i] = in.Sequence
	}
	minSeq := analyzer.MinSequence(sequences)
	detail := fmt.Sprintf("sequence: 0x%08x", minSeq)
	if enabled, kind, value := analyzer.ParseRelativeTimelock(minSeq); enabled && value > 0 {
		if kind == "time" {
			detail += fmt.Sprintf("; relative lock: %d seconds", value)
		} else {
			detail += fmt.Sprintf("; relative lock: %d blocks", value)
		}
	}

	if analyzer.IsRBFSignaling(sequences) {
		return result(CheckRBF, types.StatusPass, "RBF signaled", detail)
	}
	if analyzer.AllMaxSequence(sequences) {
		detail = "All inputs at max sequence - full-RBF may still work (most nodes relay since Core 28)"
	}
	return result(CheckRBF, types.StatusWarn, "RBF not explicitly signaled", detail)
}

// CheckCPFPFeasibility finds outputs of tx that a child could spend: they
// carry an address, have a standard type, sit above dust, and are unspent.
func CheckCPFPFeasibility(tx *types.Transaction, outspends []types.OutspendStatus) (types.CheckResult, []types.CpfpCandidate) {
	candidates := make([]types.CpfpCandidate, 0)
	spent := 0
	for i, out := range tx.Vout {
		if out.ScriptPubKeyAddress == "" || !isSpendableType(out.ScriptPubKeyType) {
			continue
		}
		if out.Value <= analyzer.DustLimit(out.ScriptPubKeyType) {
			continue
		}
		if i < len(outspends) && outspends[i].Spent {
			spent++
			continue
		}
		candidates = append(candidates, types.CpfpCandidate{
			OutputIndex: uint32(i),
			Value:       out.Value,
			Address:     out.ScriptPubKeyAddress,
			ScriptType:  out.ScriptPubKeyType,
		})
	}

	switch {
	case len(candidates) > 0:
		noun := "output"
		if len(candidates) > 1 {
			noun = "outputs"
		}
		return result(CheckCPFP, types.StatusPass,
			"CPFP possible",
			fmt.Sprintf("%d unspent %s can fund a child transaction", len(candidates), noun)), candidates
	case spent > 0:
		return result(CheckCPFP, types.StatusWarn,
			"CPFP not available",
			"Spendable outputs are already spent by another transaction"), candidates
	default:
		return result(CheckCPFP, types.StatusWarn,
			"CPFP not available",
			"No output is large enough to fund a child transaction"), candidates
	}
}

func isSpendableType(t types.ScriptType) bool {
	switch t {
	case types.ScriptP2PKH, types.ScriptP2SH, types.ScriptP2WPKH, types.ScriptP2WSH, types.ScriptP2TR:
		return true
	case types.ScriptUnknown, types.ScriptP2PK, types.ScriptMultisig, types.ScriptOpReturn, types.ScriptAnchor:
		return false
	}
	return false
}

// CheckFeeAdequacy compares the effective rate against the recommended
// rates. A rate equal to the next-block rate passes.
func CheckFeeAdequacy(tx *types.Transaction, est *types.FeeEstimate, blocks []types.MempoolBlock) types.CheckResult {
	rate := fees.EffectiveFeeRate(tx)
	label := "Fee rate: " + fees.FormatFeeRate(rate)

	switch {
	case rate >= est.FastestFee:
		return result(CheckFee, types.StatusPass, label,
			fmt.Sprintf("Meets next-block target (%s)", fees.FormatFeeRate(est.FastestFee)))
	case rate >= est.HourFee:
		return result(CheckFee, types.StatusWarn, label,
			fmt.Sprintf("Below next-block target (%s)", fees.FormatFeeRate(est.FastestFee)))
	default:
		detail := fmt.Sprintf("Well below market rate (%s needed within the hour)", fees.FormatFeeRate(est.HourFee))
		if n := len(blocks); n > 0 {
			detail += fmt.Sprintf(", projected blocks bottom out at %s", fees.FormatFeeRate(blocks[n-1].MinFee()))
		}
		return result(CheckFee, types.StatusFail, label, detail)
	}
}

// CheckMempoolPosition estimates how many pending transactions outbid tx.
func CheckMempoolPosition(tx *types.Transaction, info *types.MempoolInfo) types.CheckResult {
	rate := fees.EffectiveFeeRate(tx)
	ahead := fees.VSizeAhead(rate, info.FeeHistogram)
	if ahead == 0 || info.VSize == 0 {
		return result(CheckPosition, types.StatusPass,
			"Near the front of the mempool",
			"Few or no transactions pay a higher fee rate")
	}

	pos := fees.QueuePosition(ahead, info)
	return result(CheckPosition, types.StatusInfo,
		fmt.Sprintf("Mempool position: ~#%s of %s", fees.FormatThousands(pos), fees.FormatThousands(info.Count)),
		fmt.Sprintf("%.1f vMB of transactions pay a higher fee rate", float64(ahead)/1_000_000))
}

// CheckWaitEstimate combines the fee-based and position-based estimates.
func CheckWaitEstimate(tx *types.Transaction, blocks []types.MempoolBlock, info *types.MempoolInfo) types.CheckResult {
	n := fees.EstimateBlocksToConfirm(fees.EffectiveFeeRate(tx), blocks, info)
	estimate := fees.FormatBlockEstimate(n)

	switch {
	case n <= 1:
		return result(CheckWait, types.StatusPass,
			"Estimated wait: next block",
			"Likely to confirm in the next block (~10 min)")
	case n <= 6:
		return result(CheckWait, types.StatusWarn,
			fmt.Sprintf("Estimated wait: %d blocks", n),
			"Expected confirmation in "+estimate)
	default:
		return result(CheckWait, types.StatusFail,
			fmt.Sprintf("Estimated wait: %d+ blocks", n),
			"Could take "+estimate+" or longer at the current rate")
	}
}
