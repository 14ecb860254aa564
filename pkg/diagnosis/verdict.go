package diagnosis

import (
	"fmt"

	"txfix/pkg/fees"
	"txfix/pkg/types"
	"txfix/pkg/utils"
)

// DefaultBTCPrice is used for USD costs when the provider reports no price.
const DefaultBTCPrice = 100_000

// SeverityForBlocks grades a block estimate.
func SeverityForBlocks(blocks int) types.Severity {
	switch {
	case blocks <= 1:
		return types.SeverityFine
	case blocks <= 6:
		return types.SeveritySlow
	default:
		return types.SeverityStuck
	}
}

func buildConfirmedVerdict(data *types.DiagnosisData) types.Verdict {
	tx := data.Tx
	return types.Verdict{
		Severity: types.SeverityConfirmed,
		Headline: "Already confirmed",
		Explanation: fmt.Sprintf("This transaction was confirmed in block #%s. No action needed.",
			fees.FormatThousands(tx.Status.BlockHeight)),
		Recommendations: []types.Recommendation{},
		CurrentFeeRate:  fees.EffectiveFeeRate(tx),
		TargetFeeRate:   data.Fees.FastestFee,
	}
}

// buildVerdict ranks the ways to speed up an unconfirmed transaction.
// RBF is always offered; an unreplaceable transaction surfaces when the
// replacement is built or broadcast.
func buildVerdict(data *types.DiagnosisData, candidates []types.CpfpCandidate) types.Verdict {
	tx := data.Tx
	btcPrice := data.BTCPrice
	if btcPrice <= 0 {
		btcPrice = DefaultBTCPrice
	}
	currentRate := fees.EffectiveFeeRate(tx)
	targetRate := data.Fees.FastestFee
	blocks := fees.EstimateBlocksToConfirm(currentRate, data.MempoolBlocks, data.MempoolInfo)
	severity := SeverityForBlocks(blocks)

	canRBF := true
	canCPFP := len(candidates) > 0

	recs := make([]types.Recommendation, 0, 3)
	if severity != types.SeverityFine {
		if canRBF {
			cost := fees.CalculateRbfCost(tx, targetRate)
			recs = append(recs, types.Recommendation{
				Method:        types.MethodRBF,
				Label:         "RBF Bump",
				IsPrimary:     true,
				CostSats:      cost.AdditionalFee,
				CostUSD:       usd(cost.AdditionalFee, btcPrice),
				EstimatedTime: "~10 min",
				TargetFeeRate: targetRate,
			})
		}
		if canCPFP {
			cost := cpfpCost(tx, candidates[0], targetRate)
			recs = append(recs, types.Recommendation{
				Method:        types.MethodCPFP,
				Label:         "CPFP Child",
				IsPrimary:     !canRBF,
				CostSats:      cost.ChildFee,
				CostUSD:       usd(cost.ChildFee, btcPrice),
				EstimatedTime: "~10 min",
				TargetFeeRate: cost.EffectiveChildFeeRate,
			})
		}
	}

	if severity == types.SeverityFine || severity == types.SeveritySlow {
		recs = append(recs, types.Recommendation{
			Method:        types.MethodWait,
			Label:         "Wait",
			IsPrimary:     severity == types.SeverityFine,
			EstimatedTime: fees.FormatBlockEstimate(blocks),
			TargetFeeRate: currentRate,
		})
	}

	showAccelerator := severity == types.SeverityStuck && !canRBF && !canCPFP
	if showAccelerator {
		recs = append(recs, types.Recommendation{
			Method:        types.MethodAccelerator,
			Label:         "Use Accelerator",
			IsPrimary:     true,
			EstimatedTime: "~10-30 min",
		})
	}

	return types.Verdict{
		Severity:                severity,
		Headline:                headline(severity, blocks),
		Explanation:             explanation(severity, currentRate, targetRate),
		Recommendations:         recs,
		CanRBF:                  canRBF,
		CanCPFP:                 canCPFP,
		ShowAcceleratorFallback: showAccelerator,
		CurrentFeeRate:          currentRate,
		TargetFeeRate:           targetRate,
	}
}

// cpfpCost prices a self-spend of the candidate: the child pays back to an
// output of the same script as the candidate.
func cpfpCost(tx *types.Transaction, c types.CpfpCandidate, targetRate float64) fees.CpfpCost {
	var script []byte
	if int(c.OutputIndex) < len(tx.Vout) {
		script, _ = utils.HexToBytes(tx.Vout[c.OutputIndex].ScriptPubKey)
	}
	return fees.CalculateCpfpCost(tx, fees.ChildVSize(c.ScriptType, script), targetRate)
}

func usd(sats int64, price float64) *float64 {
	v := fees.SatsToUSD(sats, price)
	return &v
}

func headline(severity types.Severity, blocks int) string {
	switch severity {
	case types.SeverityStuck:
		return fmt.Sprintf("Stuck, but fixable - %s at current rate", fees.FormatBlockEstimate(blocks))
	case types.SeveritySlow:
		return fmt.Sprintf("Slow, but fixable - %s at current rate", fees.FormatBlockEstimate(blocks))
	case types.SeverityFine:
		return "Looking good - should confirm soon"
	case types.SeverityConfirmed:
		return "Already confirmed"
	}
	return ""
}

func explanation(severity types.Severity, currentRate, targetRate float64) string {
	switch severity {
	case types.SeverityFine:
		return fmt.Sprintf("Your transaction pays %s, which is sufficient for timely confirmation. No action needed.",
			fees.FormatFeeRate(currentRate))
	case types.SeverityConfirmed:
		return "This transaction has already been included in a block."
	case types.SeveritySlow, types.SeverityStuck:
	}
	return fmt.Sprintf("Your transaction pays %s but the mempool needs %s for next-block confirmation.",
		fees.FormatFeeRate(currentRate), fees.FormatFeeRate(targetRate))
}
