package fees

import (
	"math"

	"github.com/btcsuite/btcd/btcutil"

	"txfix/pkg/analyzer"
	"txfix/pkg/types"
)

const (
	// BlockVSize is the virtual size of a full block.
	BlockVSize = 1_000_000

	// MinRelayFeeRate is the default minimum relay fee in sat/vB.
	MinRelayFeeRate = 1.0
)

// VSize converts weight units to virtual bytes, rounding up.
func VSize(weight int64) int64 {
	return (weight + 3) / 4
}

// EffectiveFeeRate is fee / (weight / 4) in sat/vB. A zero-weight
// transaction has rate 0.
func EffectiveFeeRate(tx *types.Transaction) float64 {
	if tx.Weight <= 0 {
		return 0
	}
	return float64(tx.Fee) / (float64(tx.Weight) / 4)
}

// FeeForVSize is the fee needed to pay rate over vsize, rounded up to whole sats.
// The result saturates at the total bitcoin supply, so absurd or non-finite
// rates never wrap around to a negative fee.
func FeeForVSize(rate float64, vsize int64) int64 {
	fee := math.Ceil(rate * float64(vsize))
	if !(fee < btcutil.MaxSatoshi) {
		return btcutil.MaxSatoshi
	}
	return int64(fee)
}

// RbfCost is the price of replacing a transaction at a target rate.
type RbfCost struct {
	VSize         int64
	NewFee        int64
	AdditionalFee int64
}

// CalculateRbfCost prices a replacement of tx with the same shape paying targetRate.
func CalculateRbfCost(tx *types.Transaction, targetRate float64) RbfCost {
	vsize := VSize(int64(tx.Weight))
	newFee := FeeForVSize(targetRate, vsize)
	additional := newFee - tx.Fee
	if additional < 0 {
		additional = 0
	}
	return RbfCost{VSize: vsize, NewFee: newFee, AdditionalFee: additional}
}

// CpfpCost is the price of a child that lifts its parent to a target rate.
type CpfpCost struct {
	ParentVSize           int64
	ChildVSize            int64
	ChildFee              int64
	EffectiveChildFeeRate float64
	PackageFeeRate        float64
}

// ChildVSize estimates the vsize of a one-input, one-output child spending an
// output of inputType and paying to destScript.
func ChildVSize(inputType types.ScriptType, destScript []byte) int64 {
	weight := int64(analyzer.TxOverheadWeight) + analyzer.InputWeight(inputType) + analyzer.OutputWeight(destScript)
	if analyzer.SpendsWitness(inputType) {
		weight += analyzer.WitnessHeaderWeight
	}
	return VSize(weight)
}

// CalculateCpfpCost sizes the child fee so that parent and child together pay
// targetRate, i.e. max(0, targetRate*(parentVSize+childVSize) - parent.Fee).
// Unlike that plain package formula, the result is floored at the minimum
// relay fee for the child's own vsize rather than at zero: a parent that
// already pays targetRate still yields a child fee of childVSize sats, so
// ChildFee and PackageFeeRate can exceed what the target alone requires.
func CalculateCpfpCost(parent *types.Transaction, childVSize int64, targetRate float64) CpfpCost {
	parentVSize := VSize(int64(parent.Weight))
	childFee := FeeForVSize(targetRate, parentVSize+childVSize) - parent.Fee
	if min := FeeForVSize(MinRelayFeeRate, childVSize); childFee < min {
		childFee = min
	}

	cost := CpfpCost{
		ParentVSize: parentVSize,
		ChildVSize:  childVSize,
		ChildFee:    childFee,
	}
	if childVSize > 0 {
		cost.EffectiveChildFeeRate = float64(childFee) / float64(childVSize)
	}
	if total := parentVSize + childVSize; total > 0 {
		cost.PackageFeeRate = float64(parent.Fee+childFee) / float64(total)
	}
	return cost
}

// VSizeAhead sums the histogram buckets paying strictly more than feeRate.
func VSizeAhead(feeRate float64, histogram []types.FeeHistogramEntry) int64 {
	var ahead int64
	for _, e := range histogram {
		if e.FeeRate > feeRate {
			ahead += e.VSize
		}
	}
	return ahead
}

// QueuePosition converts the vsize ahead of a transaction into an
// approximate position among pending transactions, never beyond the pool
// count. It is 0 when the pool is empty.
func QueuePosition(vsizeAhead int64, info *types.MempoolInfo) int64 {
	if vsizeAhead <= 0 || info.VSize <= 0 {
		return 0
	}
	ratio := float64(vsizeAhead) / float64(info.VSize)
	pos := int64(math.Ceil(ratio * float64(info.Count)))
	if pos > info.Count {
		pos = info.Count
	}
	return pos
}

// BlocksByFee returns the 1-indexed projected block whose minimum fee the
// rate meets, or one past the deepest projected block.
func BlocksByFee(feeRate float64, blocks []types.MempoolBlock) int {
	for i, b := range blocks {
		if b.MinFee() <= feeRate {
			return i + 1
		}
	}
	return len(blocks) + 1
}

// BlocksByPosition estimates blocks to confirm from the vsize queued ahead.
func BlocksByPosition(vsizeAhead int64) int {
	if vsizeAhead < 0 {
		vsizeAhead = 0
	}
	return int(math.Ceil(float64(vsizeAhead)/BlockVSize)) + 1
}

// EstimateBlocksToConfirm is the more pessimistic of the fee-based and
// position-based estimates.
func EstimateBlocksToConfirm(feeRate float64, blocks []types.MempoolBlock, info *types.MempoolInfo) int {
	byFee := BlocksByFee(feeRate, blocks)
	var byPos int
	if info != nil {
		byPos = BlocksByPosition(VSizeAhead(feeRate, info.FeeHistogram))
	}
	if byPos > byFee {
		return byPos
	}
	return byFee
}
