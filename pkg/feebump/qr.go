package feebump

import (
	"fmt"

	"github.com/skip2/go-qrcode"

	"txfix/pkg/types"
)

// DefaultQRSize is the QR image width and height in pixels.
const DefaultQRSize = 512

// EncodeQR renders the base64 PSBT as a PNG QR code for air-gapped signers.
// It fails when the PSBT is too large for a single QR code.
func EncodeQR(res *types.PsbtBuildResult, size int) ([]byte, error) {
	if res == nil || res.PsbtBase64 == "" {
		return nil, fmt.Errorf("%w: empty psbt", ErrInvalidParams)
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(res.PsbtBase64, qrcode.Low, size)
	if err != nil {
		return nil, fmt.Errorf("encode psbt qr (%d chars): %w", len(res.PsbtBase64), err)
	}
	return png, nil
}
