package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	rpcTimeout    = 10 * time.Second
	maxRetries    = 3
	retryInterval = 500 * time.Millisecond
)

var (
	// ErrPriceUnavailable covers an unreachable, malformed, stale or non-positive price feed.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrNativeBalance is returned when the native asset balance cannot be read.
	ErrNativeBalance = errors.New("native balance fetch failed")
)

// Options tune the RPC client
type Options struct {
	// RateLimit caps outgoing RPC calls per second across all endpoints; 0 disables it.
	RateLimit float64
}

// Client wraps Ethereum RPC client functionality with failover support
type Client struct {
	failoverClient *FailoverClient
	erc20ABI       abi.ABI
	feedABI        abi.ABI
	limiter        *rate.Limiter
	retryInterval  time.Duration
}

// NewClient creates a new blockchain client with failover support
func NewClient(rpcURLs []string, opts Options) (*Client, error) {
	failoverClient, err := NewFailoverClient(rpcURLs)
	if err != nil {
		return nil, err
	}
	c, err := newClient(failoverClient, opts)
	if err != nil {
		failoverClient.Close()
		return nil, err
	}
	return c, nil
}

func newClient(failoverClient *FailoverClient, opts Options) (*Client, error) {
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}
	feed, err := abi.JSON(strings.NewReader(aggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse price feed ABI: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}

	return &Client{
		failoverClient: failoverClient,
		erc20ABI:       erc20,
		feedABI:        feed,
		limiter:        limiter,
		retryInterval:  retryInterval,
	}, nil
}

// Close closes all RPC client connections
func (c *Client) Close() {
	c.failoverClient.Close()
}

// GetHealthyEndpoint returns the endpoint currently selected for calls
func (c *Client) GetHealthyEndpoint() (*ethclient.Client, string, error) {
	return c.failoverClient.GetClient()
}

// GetEndpointsHealth reports the health flag of every configured endpoint
func (c *Client) GetEndpointsHealth() map[string]bool {
	return c.failoverClient.Health()
}

// ChainID queries the chain id through the selected endpoint
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	ethClient, url, err := c.failoverClient.GetClient()
	if err != nil {
		return nil, err
	}
	id, err := ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", url, err)
	}
	return id, nil
}

// call runs fn against a healthy endpoint with rate limiting, retry and failover
func (c *Client) call(ctx context.Context, fn func(*ethclient.Client) error) error {
	return c.retryWithBackoff(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		ethClient, _, err := c.failoverClient.GetClient()
		if err != nil {
			return fmt.Errorf("no RPC endpoint available: %w", err)
		}
		return fn(ethClient)
	})
}

// retryWithBackoff executes a function with exponential backoff and automatic failover
func (c *Client) retryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := c.retryInterval * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		_, currentURL, _ := c.failoverClient.GetClient()

		if err := fn(); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return fmt.Errorf("rpc call aborted: %w: %w", ctx.Err(), err)
			}
			// Next attempt picks another healthy endpoint if one exists
			if currentURL != "" {
				c.failoverClient.MarkUnhealthy(currentURL, err)
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// ToDecimal converts a raw integer amount into token units
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
