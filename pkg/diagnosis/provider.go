package diagnosis

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"txfix/pkg/types"
)

// ErrDataFetch wraps any failure of the data provider during a diagnosis.
var ErrDataFetch = errors.New("data fetch failure")

// Provider is the read-only source of transaction and mempool data.
type Provider interface {
	GetTransaction(ctx context.Context, txid string) (*types.Transaction, error)
	GetTxHex(ctx context.Context, txid string) (string, error)
	GetRecommendedFees(ctx context.Context) (*types.FeeEstimate, error)
	GetMempoolBlocks(ctx context.Context) ([]types.MempoolBlock, error)
	GetTxOutspends(ctx context.Context, txid string) ([]types.OutspendStatus, error)
	GetMempoolInfo(ctx context.Context) (*types.MempoolInfo, error)
	GetPrice(ctx context.Context) (float64, error)
}

// Fetch issues every request a diagnosis needs concurrently. Any failure
// cancels the rest and no partial data is returned.
func Fetch(ctx context.Context, p Provider, txid string) (*types.DiagnosisData, error) {
	g, gctx := errgroup.WithContext(ctx)
	data := &types.DiagnosisData{}

	wrap := func(what string, err error) error {
		if err == nil {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrDataFetch, what, err)
	}

	g.Go(func() (err error) {
		data.Tx, err = p.GetTransaction(gctx, txid)
		return wrap("transaction", err)
	})
	g.Go(func() (err error) {
		data.TxHex, err = p.GetTxHex(gctx, txid)
		return wrap("transaction hex", err)
	})
	g.Go(func() (err error) {
		data.Fees, err = p.GetRecommendedFees(gctx)
		return wrap("recommended fees", err)
	})
	g.Go(func() (err error) {
		data.MempoolBlocks, err = p.GetMempoolBlocks(gctx)
		return wrap("mempool blocks", err)
	})
	g.Go(func() (err error) {
		data.Outspends, err = p.GetTxOutspends(gctx, txid)
		return wrap("outspends", err)
	})
	g.Go(func() (err error) {
		data.MempoolInfo, err = p.GetMempoolInfo(gctx)
		return wrap("mempool info", err)
	})
	g.Go(func() (err error) {
		data.BTCPrice, err = p.GetPrice(gctx)
		return wrap("price", err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if data.Tx == nil || data.Fees == nil || data.MempoolInfo == nil {
		return nil, fmt.Errorf("%w: provider returned empty data for %s", ErrDataFetch, txid)
	}
	return data, nil
}
