package protocols

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// RateSource reads the current exchange rate of an interest-bearing wrapper
// against its underlying, scaled by 1e18, and tells whether a token is such
// a wrapper at all.
type RateSource interface {
	IsWrapper(ctx context.Context, token common.Address) (bool, error)
	ExchangeRate(ctx context.Context, wrapper common.Address) (sdkmath.Int, error)
}

// LendingRateEstimator converts between an interest-bearing wrapper and its
// underlying using the protocol's own current exchange rate. Exactly one
// side of the swap may be the wrapper; if neither or both match, the
// estimate degrades to zero.
type LendingRateEstimator struct {
	rates RateSource
}

func NewLendingRateEstimator(rates RateSource) *LendingRateEstimator {
	return &LendingRateEstimator{rates: rates}
}

func (e *LendingRateEstimator) Estimate(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	inIsWrapper, err := e.rates.IsWrapper(ctx, tokenIn)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("wrapper check for %s: %w", tokenIn.Hex(), err)
	}
	outIsWrapper, err := e.rates.IsWrapper(ctx, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("wrapper check for %s: %w", tokenOut.Hex(), err)
	}
	if inIsWrapper == outIsWrapper {
		// neither or both sides are the wrapper
		return sdkmath.ZeroInt(), nil
	}

	if inIsWrapper {
		rate, err := e.rates.ExchangeRate(ctx, tokenIn)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("exchange rate for %s: %w", tokenIn.Hex(), err)
		}
		return amount.Mul(rate).Quo(rateScale), nil
	}

	rate, err := e.rates.ExchangeRate(ctx, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("exchange rate for %s: %w", tokenOut.Hex(), err)
	}
	if rate.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	return amount.Mul(rateScale).Quo(rate), nil
}
