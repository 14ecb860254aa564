package fees

import (
	"fmt"
	"math"
	"strconv"
)

const satsPerBTC = 100_000_000

// FormatFeeRate renders a rate like "12.5 sat/vB".
func FormatFeeRate(rate float64) string {
	if rate == math.Trunc(rate) {
		return fmt.Sprintf("%.0f sat/vB", rate)
	}
	return fmt.Sprintf("%.1f sat/vB", rate)
}

// FormatBlockEstimate renders a block count as a human wait time.
func FormatBlockEstimate(blocks int) string {
	switch {
	case blocks <= 1:
		return "~10 min (next block)"
	case blocks <= 6:
		return fmt.Sprintf("~%d blocks (~%d min)", blocks, blocks*10)
	case blocks < 144:
		hours := float64(blocks) / 6
		if hours == math.Trunc(hours) {
			return fmt.Sprintf("~%d blocks (~%.0f hours)", blocks, hours)
		}
		return fmt.Sprintf("~%d blocks (~%.1f hours)", blocks, hours)
	default:
		return fmt.Sprintf("~%d blocks (~%.0f days)", blocks, math.Round(float64(blocks)/144))
	}
}

// FormatThousands inserts comma separators, e.g. 850000 -> "850,000".
func FormatThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if n < 0 {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// FormatSats renders an amount like "1,234 sats".
func FormatSats(sats int64) string {
	return FormatThousands(sats) + " sats"
}

// SatsToUSD converts sats at a BTC price, rounded to cents.
func SatsToUSD(sats int64, btcPrice float64) float64 {
	return math.Round(float64(sats)/satsPerBTC*btcPrice*100) / 100
}
