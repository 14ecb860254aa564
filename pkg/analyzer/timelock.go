package analyzer

import "github.com/btcsuite/btcd/wire"

const (
	// RBFThreshold is the first sequence value that does not signal BIP125
	// replaceability. Any input below it opts in.
	RBFThreshold uint32 = wire.MaxTxInSequenceNum - 1

	// ReplaceableSequence is the sequence given to inputs of a replacement
	// that did not already signal.
	ReplaceableSequence uint32 = wire.MaxTxInSequenceNum - 2
)

// ParseRelativeTimelock decodes BIP68 relative timelock from sequence
func ParseRelativeTimelock(sequence uint32) (enabled bool, tlType string, value uint32) {
	// BIP68: if bit 31 is set, relative timelock is disabled
	if sequence&wire.SequenceLockTimeDisabled != 0 {
		return false, "", 0
	}

	// Bit 22 determines type: 0 = blocks, 1 = time
	if sequence&wire.SequenceLockTimeIsSeconds != 0 {
		// Time-based: value in 512-second increments
		value = (sequence & wire.SequenceLockTimeMask) * 512
		return true, "time", value
	}

	// Block-based
	value = sequence & wire.SequenceLockTimeMask
	return true, "blocks", value
}

// IsRBFSignaling checks if transaction signals BIP125 replaceability
func IsRBFSignaling(sequences []uint32) bool {
	// Any input with sequence < 0xfffffffe signals RBF
	for _, seq := range sequences {
		if seq < RBFThreshold {
			return true
		}
	}
	return false
}

// AllMaxSequence reports whether every sequence is 0xffffffff. It is false
// for an empty slice.
func AllMaxSequence(sequences []uint32) bool {
	if len(sequences) == 0 {
		return false
	}
	for _, seq := range sequences {
		if seq != wire.MaxTxInSequenceNum {
			return false
		}
	}
	return true
}

// MinSequence returns the smallest sequence, or 0xffffffff for none.
func MinSequence(sequences []uint32) uint32 {
	min := wire.MaxTxInSequenceNum
	for _, seq := range sequences {
		if seq < min {
			min = seq
		}
	}
	return min
}

// ReplacementSequence returns the sequence a replacement input should carry.
// Sequences that already signal are kept so BIP68 relative locks survive.
func ReplacementSequence(sequence uint32) uint32 {
	if sequence < RBFThreshold {
		return sequence
	}
	return ReplaceableSequence
}
