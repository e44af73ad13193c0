package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/matrixise/survey-gate/internal/metrics"
)

const (
	endpointCooldown = 5 * time.Minute
	dialTimeout      = 5 * time.Second
)

var errNoHealthyEndpoint = errors.New("no healthy RPC endpoints available")

// dialFunc connects to an endpoint and verifies it answers
type dialFunc func(ctx context.Context, url string) (*ethclient.Client, error)

type endpoint struct {
	url      string
	client   *ethclient.Client
	lastErr  error
	failedAt time.Time
}

func (e *endpoint) healthy() bool { return e.client != nil }

// FailoverClient rotates over RPC endpoints. An endpoint that fails is closed
// and only redialed once its cooldown has elapsed. With a single endpoint
// nothing is ever taken out of rotation.
type FailoverClient struct {
	mu        sync.Mutex
	endpoints []*endpoint
	current   int
	dial      dialFunc
	nowFn     func() time.Time
}

// NewFailoverClient dials every url and fails if none answers
func NewFailoverClient(urls []string) (*FailoverClient, error) {
	return newFailoverClient(urls, dialEndpoint, time.Now)
}

func newFailoverClient(urls []string, dial dialFunc, now func() time.Time) (*FailoverClient, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one RPC URL is required")
	}

	fc := &FailoverClient{dial: dial, nowFn: now}
	up := 0
	for _, url := range urls {
		ep := &endpoint{url: url}
		fc.endpoints = append(fc.endpoints, ep)

		if err := fc.connect(ep); err != nil {
			slog.Warn("RPC endpoint unreachable, will retry after cooldown", "url", url, "error", err)
			continue
		}
		up++
		slog.Info("Connected to RPC endpoint", "url", url)
	}

	if up == 0 {
		return nil, errNoHealthyEndpoint
	}
	return fc, nil
}

// dialEndpoint connects and checks the endpoint answers eth_chainId
func dialEndpoint(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// connect dials ep and records the outcome. fc.mu must be held, or fc not yet shared.
func (fc *FailoverClient) connect(ep *endpoint) error {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	client, err := fc.dial(ctx, ep.url)
	if err != nil {
		ep.lastErr, ep.failedAt = err, fc.nowFn()
		metrics.RPCEndpointUp.WithLabelValues(ep.url).Set(0)
		return err
	}
	ep.client, ep.lastErr = client, nil
	metrics.RPCEndpointUp.WithLabelValues(ep.url).Set(1)
	return nil
}

// GetClient returns the current endpoint, or the next healthy one in
// round-robin order. Endpoints past their cooldown are redialed on the way.
func (fc *FailoverClient) GetClient() (*ethclient.Client, string, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	n := len(fc.endpoints)
	for i := range n {
		idx := (fc.current + i) % n
		ep := fc.endpoints[idx]

		if !ep.healthy() {
			if fc.nowFn().Sub(ep.failedAt) < endpointCooldown {
				continue
			}
			if err := fc.connect(ep); err != nil {
				continue
			}
			slog.Info("Reconnected to RPC endpoint", "url", ep.url)
		}

		fc.current = idx
		return ep.client, ep.url, nil
	}

	return nil, "", errNoHealthyEndpoint
}

// MarkUnhealthy closes the connection to url and starts its cooldown
func (fc *FailoverClient) MarkUnhealthy(url string, err error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if len(fc.endpoints) == 1 {
		return
	}

	for _, ep := range fc.endpoints {
		if ep.url != url || !ep.healthy() {
			continue
		}
		ep.client.Close()
		ep.client = nil
		ep.lastErr, ep.failedAt = err, fc.nowFn()
		metrics.RPCEndpointUp.WithLabelValues(url).Set(0)

		slog.Warn("RPC endpoint marked unhealthy",
			"url", url,
			"error", err,
			"retry_after", endpointCooldown)
		return
	}
}

// Health returns the healthy flag per endpoint URL
func (fc *FailoverClient) Health() map[string]bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	out := make(map[string]bool, len(fc.endpoints))
	for _, ep := range fc.endpoints {
		out[ep.url] = ep.healthy()
	}
	return out
}

// Close closes all endpoint connections
func (fc *FailoverClient) Close() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	for _, ep := range fc.endpoints {
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
	}
}
