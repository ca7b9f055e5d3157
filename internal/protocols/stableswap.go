package protocols

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// StableSwapReader is the registry/pool seam for stable-swap AMMs: pool
// resolution for a coin pair, per-pool coin indices with the wrapped-coin
// flag, and the pool's own quoting entry points.
type StableSwapReader interface {
	// PoolFor resolves the liquidity pool serving a coin pair. ok=false
	// when no pool is registered for the pair.
	PoolFor(ctx context.Context, tokenIn, tokenOut common.Address) (pool common.Address, ok bool, err error)
	// CoinIndex returns a token's index inside a pool and whether it is an
	// underlying-wrapped coin there.
	CoinIndex(ctx context.Context, pool, token common.Address) (index int, underlying bool, err error)
	// QuoteSwap calls the pool's quoting function for standard coins
	// (underlying=false) or underlying-wrapped coins (underlying=true).
	QuoteSwap(ctx context.Context, pool common.Address, i, j int, underlying bool, dx sdkmath.Int) (sdkmath.Int, error)
}

// StableSwapEstimator prices a swap between two coins of a stable-swap
// pool using the pool's own quoting math. A pair with no registered pool
// yields a zero estimate, never an error.
type StableSwapEstimator struct {
	reader StableSwapReader
}

func NewStableSwapEstimator(reader StableSwapReader) *StableSwapEstimator {
	return &StableSwapEstimator{reader: reader}
}

func (e *StableSwapEstimator) Estimate(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	pool, ok, err := e.reader.PoolFor(ctx, tokenIn, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("pool lookup %s/%s: %w", tokenIn.Hex(), tokenOut.Hex(), err)
	}
	if !ok {
		return sdkmath.ZeroInt(), nil
	}

	i, inUnderlying, err := e.reader.CoinIndex(ctx, pool, tokenIn)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("coin index for %s: %w", tokenIn.Hex(), err)
	}
	j, outUnderlying, err := e.reader.CoinIndex(ctx, pool, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("coin index for %s: %w", tokenOut.Hex(), err)
	}

	underlying := inUnderlying || outUnderlying
	return e.reader.QuoteSwap(ctx, pool, i, j, underlying, amount)
}
