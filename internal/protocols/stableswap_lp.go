package protocols

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// StableSwapLPReader is the seam for pricing stable-swap liquidity tokens:
// LP-to-pool resolution, the pool coin lists, single-sided deposit quoting
// and withdraw quoting through a deposit zap.
type StableSwapLPReader interface {
	// PoolForLP resolves the pool minting an LP token. ok=false when the
	// token is not a registered LP token.
	PoolForLP(ctx context.Context, lpToken common.Address) (pool common.Address, ok bool, err error)
	// PoolCoins lists the coins of a pool in index order.
	PoolCoins(ctx context.Context, pool common.Address) ([]common.Address, error)
	// QuoteDeposit prices a single-sided deposit of amount at coinIndex
	// (the pool's calc_token_amount).
	QuoteDeposit(ctx context.Context, pool common.Address, coinIndex int, amount sdkmath.Int) (sdkmath.Int, error)
	// ZapFor resolves the deposit zap of an LP token and its index-type
	// convention: signedIndex=true means the zap's withdraw-quote overload
	// takes a signed coin index.
	ZapFor(ctx context.Context, lpToken common.Address) (zap common.Address, signedIndex bool, ok bool, err error)
	// QuoteWithdraw prices burning lpAmount into the single coin at
	// coinIndex through the zap, using the overload selected by signed.
	QuoteWithdraw(ctx context.Context, zap common.Address, lpAmount sdkmath.Int, coinIndex int, signed bool) (sdkmath.Int, error)
}

// FallbackPool is a hardcoded pool absent from every registry, matched
// exactly by token identity.
type FallbackPool struct {
	LPToken common.Address
	Pool    common.Address
	Coins   []common.Address
}

// StableSwapLPEstimator prices minting and burning of stable-swap liquidity
// tokens. Four cases are handled distinctly: pure deposit, pure withdraw via
// the deposit zap, metapool deposit-or-withdraw disambiguated by coin-list
// membership, and hardcoded fallback pools.
type StableSwapLPEstimator struct {
	reader    StableSwapLPReader
	fallbacks map[common.Address]FallbackPool // keyed by LP token
}

func NewStableSwapLPEstimator(reader StableSwapLPReader, fallbacks []FallbackPool) *StableSwapLPEstimator {
	byLP := make(map[common.Address]FallbackPool, len(fallbacks))
	for _, fb := range fallbacks {
		byLP[fb.LPToken] = fb
	}
	return &StableSwapLPEstimator{reader: reader, fallbacks: byLP}
}

func (e *StableSwapLPEstimator) Estimate(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	outPool, outIsLP, err := e.reader.PoolForLP(ctx, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("lp lookup %s: %w", tokenOut.Hex(), err)
	}
	inPool, inIsLP, err := e.reader.PoolForLP(ctx, tokenIn)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("lp lookup %s: %w", tokenIn.Hex(), err)
	}

	switch {
	case outIsLP && inIsLP:
		// Metapool link: one LP token is a coin inside the other's pool.
		// Membership of the coin list decides the direction.
		if idx, ok, err := e.coinIndexOf(ctx, outPool, tokenIn); err != nil {
			return sdkmath.ZeroInt(), err
		} else if ok {
			return e.reader.QuoteDeposit(ctx, outPool, idx, amount)
		}
		if idx, ok, err := e.coinIndexOf(ctx, inPool, tokenOut); err != nil {
			return sdkmath.ZeroInt(), err
		} else if ok {
			return e.quoteWithdraw(ctx, tokenIn, amount, idx)
		}
		return sdkmath.ZeroInt(), nil

	case outIsLP:
		idx, ok, err := e.coinIndexOf(ctx, outPool, tokenIn)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if !ok {
			return sdkmath.ZeroInt(), nil
		}
		return e.reader.QuoteDeposit(ctx, outPool, idx, amount)

	case inIsLP:
		idx, ok, err := e.coinIndexOf(ctx, inPool, tokenOut)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if !ok {
			return sdkmath.ZeroInt(), nil
		}
		return e.quoteWithdraw(ctx, tokenIn, amount, idx)
	}

	return e.estimateFallback(ctx, amount, tokenIn, tokenOut)
}

func (e *StableSwapLPEstimator) coinIndexOf(ctx context.Context, pool, token common.Address) (int, bool, error) {
	coins, err := e.reader.PoolCoins(ctx, pool)
	if err != nil {
		return 0, false, fmt.Errorf("pool coins %s: %w", pool.Hex(), err)
	}
	for i, coin := range coins {
		if coin == token {
			return i, true, nil
		}
	}
	return 0, false, nil
}

func (e *StableSwapLPEstimator) quoteWithdraw(ctx context.Context, lpToken common.Address, amount sdkmath.Int, coinIndex int) (sdkmath.Int, error) {
	zap, signed, ok, err := e.reader.ZapFor(ctx, lpToken)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("zap lookup %s: %w", lpToken.Hex(), err)
	}
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	return e.reader.QuoteWithdraw(ctx, zap, amount, coinIndex, signed)
}

// estimateFallback matches hardcoded pools missing from every registry by
// exact token identity, in both orientations.
func (e *StableSwapLPEstimator) estimateFallback(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	if fb, ok := e.fallbacks[tokenOut]; ok {
		for i, coin := range fb.Coins {
			if coin == tokenIn {
				return e.reader.QuoteDeposit(ctx, fb.Pool, i, amount)
			}
		}
	}
	if fb, ok := e.fallbacks[tokenIn]; ok {
		for i, coin := range fb.Coins {
			if coin == tokenOut {
				zap, signed, hasZap, err := e.reader.ZapFor(ctx, tokenIn)
				if err != nil || !hasZap {
					return sdkmath.ZeroInt(), err
				}
				return e.reader.QuoteWithdraw(ctx, zap, amount, i, signed)
			}
		}
	}
	return sdkmath.ZeroInt(), nil
}
