package mempool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"txfix/pkg/parser"
	"txfix/pkg/types"
)

// ErrNotInSnapshot is returned for a txid the snapshot does not hold.
var ErrNotInSnapshot = errors.New("transaction not in snapshot")

// Snapshot is a provider backed by a saved copy of mempool state, for
// offline diagnosis and fee bumps.
//
// Transactions may be given in the provider's JSON form, or as raw fixtures
// (hex plus spent outputs) that are parsed on load.
type Snapshot struct {
	Transactions  map[string]*types.Transaction     `json:"transactions"`
	TxHex         map[string]string                 `json:"tx_hex"`
	Outspends     map[string][]types.OutspendStatus `json:"outspends"`
	Fixtures      []types.Fixture                   `json:"fixtures"`
	Fees          *types.FeeEstimate                `json:"fees"`
	MempoolBlocks []types.MempoolBlock              `json:"mempool_blocks"`
	MempoolInfo   *types.MempoolInfo                `json:"mempool_info"`
	Price         float64                           `json:"price"`
}

// LoadSnapshot reads a snapshot from a JSON file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return &s, nil
}

func (s *Snapshot) init() error {
	if s.Transactions == nil {
		s.Transactions = make(map[string]*types.Transaction)
	}
	if s.TxHex == nil {
		s.TxHex = make(map[string]string)
	}
	for i, f := range s.Fixtures {
		tx, err := parser.ParseTransaction(f)
		if err != nil {
			return fmt.Errorf("fixture %d: %w", i, err)
		}
		s.Transactions[tx.Txid] = tx
		s.TxHex[tx.Txid] = f.RawTx
	}
	if s.Fees == nil || s.MempoolInfo == nil {
		return errors.New("fees and mempool_info are required")
	}
	log.Debugf("loaded snapshot with %d transactions", len(s.Transactions))
	return nil
}

func (s *Snapshot) GetTransaction(_ context.Context, txid string) (*types.Transaction, error) {
	tx, ok := s.Transactions[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInSnapshot, txid)
	}
	return tx, nil
}

func (s *Snapshot) GetTxHex(_ context.Context, txid string) (string, error) {
	hex, ok := s.TxHex[txid]
	if !ok {
		return "", fmt.Errorf("%w: hex of %s", ErrNotInSnapshot, txid)
	}
	return hex, nil
}

func (s *Snapshot) GetRecommendedFees(context.Context) (*types.FeeEstimate, error) {
	return s.Fees, nil
}

func (s *Snapshot) GetMempoolBlocks(context.Context) ([]types.MempoolBlock, error) {
	return s.MempoolBlocks, nil
}

// GetTxOutspends reports every output unspent unless the snapshot says otherwise.
func (s *Snapshot) GetTxOutspends(_ context.Context, txid string) ([]types.OutspendStatus, error) {
	if o, ok := s.Outspends[txid]; ok {
		return o, nil
	}
	tx, ok := s.Transactions[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInSnapshot, txid)
	}
	return make([]types.OutspendStatus, len(tx.Vout)), nil
}

func (s *Snapshot) GetMempoolInfo(context.Context) (*types.MempoolInfo, error) {
	return s.MempoolInfo, nil
}

func (s *Snapshot) GetPrice(context.Context) (float64, error) {
	return s.Price, nil
}
