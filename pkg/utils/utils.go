package utils

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrOddLength is returned for hex strings with an odd number of digits
	ErrOddLength = errors.New("invalid hex string: odd length")
	// ErrInvalidHexChar is returned for hex strings containing non-hex characters
	ErrInvalidHexChar = errors.New("invalid hex string: invalid characters")
)

// HexToBytes converts hex string to bytes with validation.
// Both upper and lower case digits are accepted; "" decodes to an empty slice.
func HexToBytes(hexStr string) ([]byte, error) {
	if len(hexStr)%2 != 0 {
		return nil, ErrOddLength
	}
	for i := 0; i < len(hexStr); i++ {
		if !isHexDigit(hexStr[i]) {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidHexChar, hexStr[i], i)
		}
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// BytesToHex encodes bytes as lower-case hex
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
