package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txfix/pkg/types"
)

type fakeProvider struct {
	data     types.DiagnosisData
	priceErr error
}

func (f *fakeProvider) GetTransaction(context.Context, string) (*types.Transaction, error) {
	return f.data.Tx, nil
}

func (f *fakeProvider) GetTxHex(context.Context, string) (string, error) {
	return f.data.TxHex, nil
}

func (f *fakeProvider) GetRecommendedFees(context.Context) (*types.FeeEstimate, error) {
	return f.data.Fees, nil
}

func (f *fakeProvider) GetMempoolBlocks(context.Context) ([]types.MempoolBlock, error) {
	return f.data.MempoolBlocks, nil
}

func (f *fakeProvider) GetTxOutspends(context.Context, string) ([]types.OutspendStatus, error) {
	return f.data.Outspends, nil
}

func (f *fakeProvider) GetMempoolInfo(context.Context) (*types.MempoolInfo, error) {
	return f.data.MempoolInfo, nil
}

func (f *fakeProvider) GetPrice(context.Context) (float64, error) {
	return f.data.BTCPrice, f.priceErr
}

// slowData describes a 100 vB transaction paying 20 sat/vB while the next
// block needs 50, with 1.7 vMB queued ahead of it.
func slowData() types.DiagnosisData {
	return types.DiagnosisData{
		Tx: &types.Transaction{
			Txid:   "f00d",
			Weight: 400,
			Fee:    2_000,
			Vin:    []types.Vin{{Txid: "beef", Sequence: 0xfffffffd}},
			Vout: []types.Vout{
				{ScriptPubKey: p2wpkhScript, ScriptPubKeyType: types.ScriptP2WPKH, ScriptPubKeyAddress: "bc1qchange", Value: 50_000},
			},
		},
		TxHex: "00",
		Fees:  &types.FeeEstimate{FastestFee: 50, HalfHourFee: 30, HourFee: 10, EconomyFee: 5, MinimumFee: 1},
		MempoolBlocks: []types.MempoolBlock{
			{FeeRange: []float64{50, 100}},
			{FeeRange: []float64{20, 50}},
			{FeeRange: []float64{5, 20}},
		},
		MempoolInfo: &types.MempoolInfo{
			Count: 20_000,
			VSize: 11_700_000,
			FeeHistogram: []types.FeeHistogramEntry{
				{FeeRate: 100, VSize: 500_000},
				{FeeRate: 50, VSize: 1_200_000},
				{FeeRate: 5, VSize: 10_000_000},
			},
		},
		Outspends: []types.OutspendStatus{{}},
		BTCPrice:  60_000,
	}
}

func collect(t *testing.T, ch <-chan Event) ([]types.CheckResult, *EngineResult, error) {
	t.Helper()
	var checks []types.CheckResult
	var res *EngineResult
	var err error
	for ev := range ch {
		switch {
		case ev.Check != nil:
			require.Nil(t, res, "check after result")
			checks = append(checks, *ev.Check)
		case ev.Result != nil:
			res = ev.Result
		case ev.Err != nil:
			err = ev.Err
		}
	}
	return checks, res, err
}

func TestEngineRunSlow(t *testing.T) {
	e := New(&fakeProvider{data: slowData()})
	checks, res, err := collect(t, e.Run(context.Background(), "f00d"))
	require.NoError(t, err)
	require.NotNil(t, res)

	ids := make([]string, len(checks))
	for i, c := range checks {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{CheckConfirmation, CheckRBF, CheckCPFP, CheckFee, CheckPosition, CheckWait}, ids)
	assert.Equal(t, checks, res.Checks)

	v := res.Verdict
	assert.Equal(t, types.SeveritySlow, v.Severity)
	assert.Equal(t, "Slow, but fixable - ~3 blocks (~30 min) at current rate", v.Headline)
	assert.True(t, v.CanRBF)
	assert.True(t, v.CanCPFP)
	assert.False(t, v.ShowAcceleratorFallback)
	assert.Equal(t, 20.0, v.CurrentFeeRate)
	assert.Equal(t, 50.0, v.TargetFeeRate)

	require.Len(t, v.Recommendations, 3)
	rbf, cpfp, wait := v.Recommendations[0], v.Recommendations[1], v.Recommendations[2]

	assert.Equal(t, types.MethodRBF, rbf.Method)
	assert.True(t, rbf.IsPrimary)
	assert.Equal(t, int64(3_000), rbf.CostSats)
	require.NotNil(t, rbf.CostUSD)
	assert.InDelta(t, 1.8, *rbf.CostUSD, 1e-9)

	// Child: 110 vB self-spend, package of 210 vB at 50 sat/vB.
	assert.Equal(t, types.MethodCPFP, cpfp.Method)
	assert.False(t, cpfp.IsPrimary)
	assert.Equal(t, int64(8_500), cpfp.CostSats)
	assert.InDelta(t, 8500.0/110, cpfp.TargetFeeRate, 1e-9)

	assert.Equal(t, types.MethodWait, wait.Method)
	assert.False(t, wait.IsPrimary)
	assert.Equal(t, "~3 blocks (~30 min)", wait.EstimatedTime)

	require.Len(t, res.CpfpCandidates, 1)
	assert.Equal(t, uint32(0), res.CpfpCandidates[0].OutputIndex)
}

func TestEngineRunConfirmed(t *testing.T) {
	data := slowData()
	data.Tx.Status = types.TxStatus{Confirmed: true, BlockHeight: 850_000}

	checks, res, err := collect(t, New(&fakeProvider{data: data}).Run(context.Background(), "f00d"))
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, CheckConfirmation, checks[0].ID)

	v := res.Verdict
	assert.Equal(t, types.SeverityConfirmed, v.Severity)
	assert.NotNil(t, v.Recommendations)
	assert.Empty(t, v.Recommendations)
	assert.False(t, v.CanRBF)
	assert.False(t, v.CanCPFP)
	assert.Equal(t, 50.0, v.TargetFeeRate)
	assert.Empty(t, res.CpfpCandidates)
}

func TestEngineRunFine(t *testing.T) {
	data := slowData()
	data.Tx.Fee = 20_000

	res, err := New(&fakeProvider{data: data}).Diagnose(context.Background(), "f00d")
	require.NoError(t, err)
	assert.Equal(t, types.SeverityFine, res.Verdict.Severity)
	require.Len(t, res.Verdict.Recommendations, 1)
	assert.Equal(t, types.MethodWait, res.Verdict.Recommendations[0].Method)
	assert.True(t, res.Verdict.Recommendations[0].IsPrimary)
}

func TestEngineRunFetchFailure(t *testing.T) {
	boom := errors.New("price feed down")
	checks, res, err := collect(t, New(&fakeProvider{data: slowData(), priceErr: boom}).Run(context.Background(), "f00d"))
	assert.Empty(t, checks)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataFetch)
	assert.ErrorIs(t, err, boom)
}

func TestEngineRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := New(&fakeProvider{data: slowData()}).Run(ctx, "f00d")

	first := <-ch
	require.NotNil(t, first.Check)
	assert.Equal(t, CheckConfirmation, first.Check.ID)
	cancel()

	for ev := range ch {
		assert.Nil(t, ev.Result)
		assert.Nil(t, ev.Err)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	data := slowData()
	a, err := Evaluate(&data)
	require.NoError(t, err)
	b, err := Evaluate(&data)
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestSequence(t *testing.T) {
	_, err := NewSequence(&types.DiagnosisData{})
	require.Error(t, err)

	data := slowData()
	seq, err := NewSequence(&data)
	require.NoError(t, err)

	n := 0
	for {
		assert.Nil(t, seq.Result())
		if _, ok := seq.Next(); !ok {
			break
		}
		n++
	}
	assert.Equal(t, 6, n)
	require.NotNil(t, seq.Result())

	_, ok := seq.Next()
	assert.False(t, ok)
}
