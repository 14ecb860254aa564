package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"txfix/pkg/types"
	"txfix/pkg/utils"
)

func getJSON[T any](ctx context.Context, c *Client, method, path string) (T, error) {
	var out T
	body, err := c.get(ctx, method, path)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%s: unmarshal response: %w", method, err)
	}
	return out, nil
}

func txPath(txid string, suffix string) string {
	return "/tx/" + url.PathEscape(txid) + suffix
}

func (c *Client) GetTransaction(ctx context.Context, txid string) (*types.Transaction, error) {
	return getJSON[*types.Transaction](ctx, c, "tx", txPath(txid, ""))
}

// GetTxHex returns the raw serialized transaction.
func (c *Client) GetTxHex(ctx context.Context, txid string) (string, error) {
	body, err := c.get(ctx, "tx_hex", txPath(txid, "/hex"))
	if err != nil {
		return "", err
	}
	hex := strings.TrimSpace(string(body))
	if _, err := utils.HexToBytes(hex); err != nil {
		return "", fmt.Errorf("tx_hex: %w", err)
	}
	return hex, nil
}

func (c *Client) GetRecommendedFees(ctx context.Context) (*types.FeeEstimate, error) {
	return getJSON[*types.FeeEstimate](ctx, c, "fees", "/v1/fees/recommended")
}

// GetMempoolBlocks returns the projected next blocks, highest fee first.
func (c *Client) GetMempoolBlocks(ctx context.Context) ([]types.MempoolBlock, error) {
	return getJSON[[]types.MempoolBlock](ctx, c, "mempool_blocks", "/v1/fees/mempool-blocks")
}

// GetTxOutspends returns the spend status of each output, in output order.
func (c *Client) GetTxOutspends(ctx context.Context, txid string) ([]types.OutspendStatus, error) {
	return getJSON[[]types.OutspendStatus](ctx, c, "outspends", txPath(txid, "/outspends"))
}

func (c *Client) GetMempoolInfo(ctx context.Context) (*types.MempoolInfo, error) {
	return getJSON[*types.MempoolInfo](ctx, c, "mempool", "/mempool")
}

type prices struct {
	Time int64   `json:"time"`
	USD  float64 `json:"USD"`
}

// GetPrice returns the BTC/USD price.
func (c *Client) GetPrice(ctx context.Context) (float64, error) {
	p, err := getJSON[prices](ctx, c, "prices", "/v1/prices")
	if err != nil {
		return 0, err
	}
	return p.USD, nil
}

// Broadcast submits a signed transaction and returns its txid. Rejections
// are returned as *StatusError carrying the node's reason.
func (c *Client) Broadcast(ctx context.Context, rawHex string) (string, error) {
	rawHex = strings.TrimSpace(rawHex)
	if _, err := utils.HexToBytes(rawHex); err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	body, err := c.do(ctx, "broadcast", http.MethodPost, "/tx", strings.NewReader(rawHex))
	if err != nil {
		return "", err
	}
	txid := strings.TrimSpace(string(body))
	log.Infof("broadcast accepted: %s", txid)
	return txid, nil
}
