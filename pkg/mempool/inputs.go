package mempool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"txfix/pkg/types"
)

// maxHexFetches bounds concurrent previous-transaction fetches.
const maxHexFetches = 4

// HexFetcher fetches raw transactions.
type HexFetcher interface {
	GetTxHex(ctx context.Context, txid string) (string, error)
}

// needsFullPrevTx reports whether signing in requires the whole previous
// transaction rather than just the spent output.
func needsFullPrevTx(in *types.Vin) bool {
	if in.IsCoinbase {
		return false
	}
	if in.Prevout == nil {
		return true
	}
	t := in.Prevout.ScriptPubKeyType
	if t.IsSegWit() {
		return false
	}
	return !(t == types.ScriptP2SH && len(in.Witness) > 0)
}

// InputTxHexes fetches the raw previous transaction of every legacy input of
// tx, keyed by txid.
func InputTxHexes(ctx context.Context, f HexFetcher, tx *types.Transaction) (map[string]string, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]string)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxHexFetches)

	seen := make(map[string]struct{})
	for i := range tx.Vin {
		in := &tx.Vin[i]
		if !needsFullPrevTx(in) {
			continue
		}
		if _, ok := seen[in.Txid]; ok {
			continue
		}
		seen[in.Txid] = struct{}{}

		txid := in.Txid
		g.Go(func() error {
			hex, err := f.GetTxHex(gctx, txid)
			if err != nil {
				return fmt.Errorf("previous tx %s: %w", txid, err)
			}
			mu.Lock()
			out[txid] = hex
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debugf("fetched %d previous transactions for %s", len(out), tx.Txid)
	return out, nil
}
