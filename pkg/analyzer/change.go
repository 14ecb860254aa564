package analyzer

import "txfix/pkg/types"

// IdentifyChangeOutput guesses which output of tx returns change to the
// sender. It returns the output index, or -1 if nothing qualifies.
//
// In priority order:
//  1. the only addressable output whose script type matches an input's type
//  2. among several matches, the only one with a non-round value
//  3. otherwise the last matching output
//  4. with no type match, the last addressable output
//
// This is a heuristic; several non-round matches fall back to the last one.
func IdentifyChangeOutput(tx *types.Transaction) int {
	inputTypes := make(map[types.ScriptType]struct{}, len(tx.Vin))
	for _, in := range tx.Vin {
		if in.Prevout != nil {
			inputTypes[in.Prevout.ScriptPubKeyType] = struct{}{}
		}
	}

	var candidates []int
	for i, out := range tx.Vout {
		if out.ScriptPubKeyAddress == "" {
			continue
		}
		if _, ok := inputTypes[out.ScriptPubKeyType]; ok {
			candidates = append(candidates, i)
		}
	}

	switch len(candidates) {
	case 0:
	case 1:
		return candidates[0]
	default:
		// Change is rarely a round number
		nonRound := -1
		count := 0
		for _, i := range candidates {
			if isRoundAmount(tx.Vout[i].Value) {
				continue
			}
			nonRound = i
			count++
		}
		if count == 1 {
			return nonRound
		}
		return candidates[len(candidates)-1]
	}

	for i := len(tx.Vout) - 1; i >= 0; i-- {
		if tx.Vout[i].ScriptPubKeyAddress != "" {
			return i
		}
	}
	return -1
}

func isRoundAmount(sats int64) bool {
	return sats%1_000 == 0 || sats%10_000 == 0
}
