package feebump

import "errors"

var (
	// ErrMissingRawTxHex means a legacy input has no full previous
	// transaction to attach as its non-witness UTXO.
	ErrMissingRawTxHex = errors.New("missing raw transaction hex for legacy input")
	// ErrChangeOutputTooSmall means the change left after the fee bump is dust.
	ErrChangeOutputTooSmall = errors.New("change output too small to cover fee increase")
	// ErrFeeNotHigher means the replacement would not pay more than the original.
	ErrFeeNotHigher = errors.New("new fee is not higher than original fee")
	// ErrChangeOutputNotFound means no output could be identified as change.
	ErrChangeOutputNotFound = errors.New("could not identify change output")
	// ErrInsufficientValue means a CPFP candidate cannot cover the child fee
	// plus a non-dust output.
	ErrInsufficientValue = errors.New("output value too small to fund child fee")
	// ErrInvalidParams covers malformed builder input.
	ErrInvalidParams = errors.New("invalid fee bump parameters")
)
