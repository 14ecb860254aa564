package mempool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"txfix/pkg/metrics"
	"txfix/pkg/types"
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a response is read.
const maxBodySize = 8 << 20

// BaseURL returns the public mempool.space API root for a network.
func BaseURL(n types.Network) string {
	switch n {
	case types.Testnet:
		return "https://mempool.space/testnet/api"
	case types.Testnet4:
		return "https://mempool.space/testnet4/api"
	case types.Signet:
		return "https://mempool.space/signet/api"
	case types.Regtest:
		return "http://localhost:8999/api"
	case types.Mainnet:
	}
	return "https://mempool.space/api"
}

// StatusError is a non-2xx response from the provider.
type StatusError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http status %d: %s", e.Method, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the provider.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client reads transaction and mempool data from a mempool.space-compatible
// REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a client for baseURL. A non-positive timeout uses
// DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// SetRateLimit limits requests to rps per second with the given burst.
// A non-positive rps removes the limit.
func (c *Client) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		c.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// wait blocks until the limiter allows one request, or ctx is done.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	r := c.limiter.Reserve()
	if !r.OK() {
		return errors.New("rate: cannot reserve token")
	}
	if delay := r.Delay(); delay > 0 {
		metrics.ProviderRateLimitWaits.Inc()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, httpMethod, path string, body io.Reader) (respBody []byte, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		var se *StatusError
		switch {
		case errors.As(err, &se):
			status = strconv.Itoa(se.StatusCode)
		case err != nil:
			status = "error"
		}
		metrics.ProviderRequestsTotal.WithLabelValues(method, status).Inc()
		metrics.ProviderLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	log.Tracef("%s %s: %d bytes in %v", httpMethod, path, len(respBody), time.Since(start))
	return respBody, nil
}

func (c *Client) get(ctx context.Context, method, path string) ([]byte, error) {
	return c.do(ctx, method, http.MethodGet, path, nil)
}
