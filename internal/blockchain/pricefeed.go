package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

const aggregatorV3ABI = `[
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

// errCallerCanceled marks a read aborted by the caller's context. It says
// nothing about the feed, so the breaker does not count it as a failure.
var errCallerCanceled = errors.New("price read canceled by caller")

// Price is a native-asset/USD quote from the feed
type Price struct {
	USD       decimal.Decimal
	UpdatedAt time.Time
}

// PriceFeedOptions describe the aggregator contract
type PriceFeedOptions struct {
	Address  string
	Decimals uint8
	MaxAge   time.Duration
}

// PriceFeed reads latestRoundData from a Chainlink-style aggregator behind a
// circuit breaker. Every failure surfaces as ErrPriceUnavailable.
type PriceFeed struct {
	client  *Client
	opts    PriceFeedOptions
	breaker *gobreaker.CircuitBreaker
	nowFn   func() time.Time
}

// NewPriceFeed creates a price feed reader on top of client
func NewPriceFeed(client *Client, opts PriceFeedOptions) *PriceFeed {
	st := gobreaker.Settings{
		Name:        "PriceFeed",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerCanceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &PriceFeed{
		client:  client,
		opts:    opts,
		breaker: gobreaker.NewCircuitBreaker(st),
		nowFn:   time.Now,
	}
}

// NativeUSDPrice returns the current positive, fresh native/USD price
func (p *PriceFeed) NativeUSDPrice(ctx context.Context) (Price, error) {
	if err := ctx.Err(); err != nil {
		return Price{}, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}

	res, err := p.breaker.Execute(func() (interface{}, error) {
		answer, updatedAt, err := p.client.latestRoundData(ctx, common.HexToAddress(p.opts.Address))
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errCallerCanceled, err)
			}
			return nil, err
		}
		return priceFromRound(answer, updatedAt, p.opts.Decimals, p.opts.MaxAge, p.nowFn())
	})
	if err != nil {
		if errors.Is(err, ErrPriceUnavailable) {
			return Price{}, err
		}
		return Price{}, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}
	return res.(Price), nil
}

// BreakerState reports the circuit breaker state ("closed", "half-open" or "open")
func (p *PriceFeed) BreakerState() string {
	return p.breaker.State().String()
}

// latestRoundData returns (answer, updatedAt) of the aggregator's latest round
func (c *Client) latestRoundData(ctx context.Context, feed common.Address) (*big.Int, *big.Int, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	var out []any
	err := c.call(rpcCtx, func(ethClient *ethclient.Client) error {
		contract := bind.NewBoundContract(feed, c.feedABI, ethClient, ethClient, ethClient)
		out = nil
		return contract.Call(&bind.CallOpts{Context: rpcCtx}, &out, "latestRoundData")
	})
	if err != nil {
		return nil, nil, fmt.Errorf("latestRoundData: %w", err)
	}
	if len(out) != 5 {
		return nil, nil, fmt.Errorf("%w: latestRoundData returned %d values", ErrPriceUnavailable, len(out))
	}

	answer, ok := out[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("%w: malformed answer %T", ErrPriceUnavailable, out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("%w: malformed updatedAt %T", ErrPriceUnavailable, out[3])
	}
	return answer, updatedAt, nil
}

// priceFromRound validates a round and scales the answer by the feed decimals
func priceFromRound(answer, updatedAt *big.Int, decimals uint8, maxAge time.Duration, now time.Time) (Price, error) {
	if answer == nil || answer.Sign() <= 0 {
		return Price{}, fmt.Errorf("%w: non-positive answer %v", ErrPriceUnavailable, answer)
	}
	if updatedAt == nil || updatedAt.Sign() <= 0 || !updatedAt.IsInt64() {
		return Price{}, fmt.Errorf("%w: invalid updatedAt %v", ErrPriceUnavailable, updatedAt)
	}

	ts := time.Unix(updatedAt.Int64(), 0).UTC()
	if maxAge > 0 && now.Sub(ts) > maxAge {
		return Price{}, fmt.Errorf("%w: stale round updated at %s", ErrPriceUnavailable, ts.Format(time.RFC3339))
	}

	return Price{USD: ToDecimal(answer, decimals), UpdatedAt: ts}, nil
}
