package blockchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"}
]`

// TokenInfo represents a tracked token contract
type TokenInfo struct {
	Symbol   string
	Address  string
	Decimals uint8
}

// RawBalance is one token position in token units. Err is set when the
// fetch failed, in which case Balance is zero.
type RawBalance struct {
	Symbol  string
	Balance decimal.Decimal
	Err     error
}

// TokenBalances fetches every token balance of wallet concurrently. A failing
// token is logged and reported as zero; it never fails the batch.
func (c *Client) TokenBalances(ctx context.Context, wallet common.Address, tokens []TokenInfo) []RawBalance {
	return fetchConcurrently(ctx, tokens, func(ctx context.Context, token TokenInfo) (decimal.Decimal, error) {
		return c.TokenBalance(ctx, wallet, token)
	})
}

// TokenBalance retrieves the balanceOf a single token for wallet
func (c *Client) TokenBalance(ctx context.Context, wallet common.Address, token TokenInfo) (decimal.Decimal, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	tokenAddr := common.HexToAddress(token.Address)

	var out []any
	err := c.call(rpcCtx, func(ethClient *ethclient.Client) error {
		contract := bind.NewBoundContract(tokenAddr, c.erc20ABI, ethClient, ethClient, ethClient)
		out = nil
		return contract.Call(&bind.CallOpts{Context: rpcCtx}, &out, "balanceOf", wallet)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf %s: %w", token.Symbol, err)
	}

	raw, ok := firstBigInt(out)
	if !ok {
		return decimal.Zero, fmt.Errorf("balanceOf %s: unexpected response %v", token.Symbol, out)
	}
	return ToDecimal(raw, token.Decimals), nil
}

type tokenFetchFunc func(ctx context.Context, token TokenInfo) (decimal.Decimal, error)

// fetchConcurrently runs one goroutine per token and keeps input order
func fetchConcurrently(ctx context.Context, tokens []TokenInfo, fetch tokenFetchFunc) []RawBalance {
	results := make([]RawBalance, len(tokens))
	var wg sync.WaitGroup

	for i, tok := range tokens {
		wg.Add(1)
		go func(i int, token TokenInfo) {
			defer wg.Done()

			results[i] = RawBalance{Symbol: token.Symbol, Balance: decimal.Zero}

			bal, err := fetch(ctx, token)
			if err != nil {
				slog.Warn("Token query error, counting as zero",
					"symbol", token.Symbol,
					"token_address", token.Address,
					"error", err)
				results[i].Err = err
				return
			}

			slog.Debug("Balance retrieved", "symbol", token.Symbol, "balance", bal.String())
			results[i].Balance = bal
		}(i, tok)
	}

	wg.Wait()
	return results
}

func firstBigInt(out []any) (*big.Int, bool) {
	if len(out) == 0 {
		return nil, false
	}
	v, ok := out[0].(*big.Int)
	return v, ok && v != nil
}
