package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"txfix/pkg/diagnosis"
	"txfix/pkg/feebump"
	"txfix/pkg/mempool"
	"txfix/pkg/types"
	"txfix/pkg/utils"
)

// ErrBroadcastUnsupported is returned when the provider has no submission
// endpoint, such as an offline snapshot.
var ErrBroadcastUnsupported = errors.New("provider cannot broadcast transactions")

// Broadcaster submits signed transactions.
type Broadcaster interface {
	Broadcast(ctx context.Context, rawHex string) (string, error)
}

// Service ties a data provider to the diagnosis engine and the fee bump
// builders. The CLI and the web API both drive it.
type Service struct {
	provider    diagnosis.Provider
	broadcaster Broadcaster
	engine      *diagnosis.Engine
	network     types.Network
}

// New creates a Service. A positive priceFallback is used whenever the
// provider has no BTC/USD price.
func New(p diagnosis.Provider, network types.Network, priceFallback float64) *Service {
	s := &Service{network: network}
	if b, ok := p.(Broadcaster); ok {
		s.broadcaster = b
	}
	if priceFallback > 0 {
		p = &fallbackPrice{Provider: p, price: priceFallback}
	}
	s.provider = p
	s.engine = diagnosis.New(p)
	return s
}

// Network returns the network PSBTs are built for.
func (s *Service) Network() types.Network {
	return s.network
}

// ValidateTxid checks that txid is 64 hex characters.
func ValidateTxid(txid string) error {
	if len(txid) != 64 {
		return fmt.Errorf("%w: txid must be 64 hex characters", feebump.ErrInvalidParams)
	}
	if _, err := utils.HexToBytes(txid); err != nil {
		return fmt.Errorf("%w: txid: %w", feebump.ErrInvalidParams, err)
	}
	return nil
}

// Diagnose runs a full diagnosis of txid.
func (s *Service) Diagnose(ctx context.Context, txid string) (*diagnosis.EngineResult, error) {
	if err := ValidateTxid(txid); err != nil {
		return nil, err
	}
	return s.engine.Diagnose(ctx, txid)
}

// Stream runs a diagnosis of txid, delivering each check as it completes.
func (s *Service) Stream(ctx context.Context, txid string) (<-chan diagnosis.Event, error) {
	if err := ValidateTxid(txid); err != nil {
		return nil, err
	}
	return s.engine.Run(ctx, txid), nil
}

// RBF builds a replacement of txid paying feeRate. A non-positive feeRate
// targets the provider's fastest recommended rate.
func (s *Service) RBF(ctx context.Context, txid string, feeRate float64) (*types.PsbtBuildResult, error) {
	if err := ValidateTxid(txid); err != nil {
		return nil, err
	}
	var (
		tx    *types.Transaction
		txHex string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tx, err = s.provider.GetTransaction(gctx, txid)
		return fetchErr("transaction", err)
	})
	g.Go(func() (err error) {
		txHex, err = s.provider.GetTxHex(gctx, txid)
		return fetchErr("transaction hex", err)
	})
	g.Go(func() (err error) {
		feeRate, err = s.targetRate(gctx, feeRate)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inputHex, err := mempool.InputTxHexes(ctx, s.provider, tx)
	if err != nil {
		return nil, fetchErr("input transactions", err)
	}

	return feebump.BuildRBF(feebump.RBFParams{
		Tx:            tx,
		TxHex:         txHex,
		InputTxHex:    inputHex,
		TargetFeeRate: feeRate,
		Network:       s.network,
	})
}

// CPFPRequest selects the parent output and destination of a CPFP child.
type CPFPRequest struct {
	Txid    string
	FeeRate float64
	// OutputIndex picks the parent output to spend. Nil picks the first
	// spendable one.
	OutputIndex *uint32
	Destination string
}

// CPFP builds a child of req.Txid that lifts the package to req.FeeRate.
func (s *Service) CPFP(ctx context.Context, req CPFPRequest) (*types.PsbtBuildResult, error) {
	if err := ValidateTxid(req.Txid); err != nil {
		return nil, err
	}
	var (
		tx        *types.Transaction
		txHex     string
		outspends []types.OutspendStatus
		feeRate   = req.FeeRate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tx, err = s.provider.GetTransaction(gctx, req.Txid)
		return fetchErr("transaction", err)
	})
	g.Go(func() (err error) {
		txHex, err = s.provider.GetTxHex(gctx, req.Txid)
		return fetchErr("transaction hex", err)
	})
	g.Go(func() (err error) {
		outspends, err = s.provider.GetTxOutspends(gctx, req.Txid)
		return fetchErr("outspends", err)
	})
	g.Go(func() (err error) {
		feeRate, err = s.targetRate(gctx, feeRate)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	_, candidates := diagnosis.CheckCPFPFeasibility(tx, outspends)
	candidate, err := pickCandidate(candidates, req.OutputIndex)
	if err != nil {
		return nil, err
	}

	return feebump.BuildCPFP(feebump.CPFPParams{
		Tx:            tx,
		TxHex:         txHex,
		Candidate:     candidate,
		TargetFeeRate: feeRate,
		Destination:   req.Destination,
		Network:       s.network,
	})
}

func pickCandidate(candidates []types.CpfpCandidate, index *uint32) (types.CpfpCandidate, error) {
	if len(candidates) == 0 {
		return types.CpfpCandidate{}, fmt.Errorf("%w: no unspent output can fund a child transaction",
			feebump.ErrInvalidParams)
	}
	if index == nil {
		return candidates[0], nil
	}
	for _, c := range candidates {
		if c.OutputIndex == *index {
			return c, nil
		}
	}
	return types.CpfpCandidate{}, fmt.Errorf("%w: output %d cannot fund a child transaction",
		feebump.ErrInvalidParams, *index)
}

// Broadcast submits a signed transaction through the provider.
func (s *Service) Broadcast(ctx context.Context, rawHex string) (string, error) {
	if s.broadcaster == nil {
		return "", ErrBroadcastUnsupported
	}
	if rawHex == "" {
		return "", fmt.Errorf("%w: empty transaction hex", feebump.ErrInvalidParams)
	}
	return s.broadcaster.Broadcast(ctx, rawHex)
}

func (s *Service) targetRate(ctx context.Context, rate float64) (float64, error) {
	if rate > 0 {
		return rate, nil
	}
	est, err := s.provider.GetRecommendedFees(ctx)
	if err != nil {
		return 0, fetchErr("recommended fees", err)
	}
	if est == nil || est.FastestFee <= 0 {
		return 0, fmt.Errorf("%w: no recommended fee rate available", diagnosis.ErrDataFetch)
	}
	return est.FastestFee, nil
}

func fetchErr(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", diagnosis.ErrDataFetch, what, err)
}

type fallbackPrice struct {
	diagnosis.Provider
	price float64
}

func (f *fallbackPrice) GetPrice(ctx context.Context) (float64, error) {
	price, err := f.Provider.GetPrice(ctx)
	if err != nil && ctx.Err() == nil {
		log.Warnf("price unavailable, using %.0f: %v", f.price, err)
		return f.price, nil
	}
	if err == nil && price <= 0 {
		return f.price, nil
	}
	return price, err
}
