package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const nativeDecimals = 18

// NativeBalance returns the wallet's native asset balance in ether units.
// Any failure is reported as ErrNativeBalance.
func (c *Client) NativeBalance(ctx context.Context, wallet common.Address) (decimal.Decimal, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	var wei *big.Int
	err := c.call(rpcCtx, func(ethClient *ethclient.Client) error {
		var err error
		wei, err = ethClient.BalanceAt(rpcCtx, wallet, nil)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %w", ErrNativeBalance, wallet.Hex(), err)
	}
	return ToDecimal(wei, nativeDecimals), nil
}
