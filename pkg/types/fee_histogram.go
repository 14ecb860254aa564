package types

import (
	"encoding/json"
	"fmt"
)

// FeeHistogramEntry is one [feeRate, vsize] bucket of the mempool fee histogram.
type FeeHistogramEntry struct {
	FeeRate float64
	VSize   int64
}

func (e FeeHistogramEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{e.FeeRate, float64(e.VSize)})
}

func (e *FeeHistogramEntry) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("fee histogram entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("fee histogram entry: expected 2 values, got %d", len(pair))
	}
	e.FeeRate = pair[0]
	e.VSize = int64(pair[1])
	return nil
}
