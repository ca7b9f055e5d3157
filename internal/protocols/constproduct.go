package protocols

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// PairQuoter is one venue's own quoting entry point for a token pair
// (getAmountsOut-style routers, order-router quote calls). A pair the venue
// does not serve quotes as zero.
type PairQuoter interface {
	Quote(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error)
}

// ConstProductEstimator delegates to a constant-product or order-router
// venue's quoter. One instance exists per venue; the registry maps each
// venue's adapter to its own instance.
type ConstProductEstimator struct {
	quoter PairQuoter
}

func NewConstProductEstimator(quoter PairQuoter) *ConstProductEstimator {
	return &ConstProductEstimator{quoter: quoter}
}

func (e *ConstProductEstimator) Estimate(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	if tokenIn == tokenOut {
		return sdkmath.ZeroInt(), nil
	}
	return e.quoter.Quote(ctx, amount, tokenIn, tokenOut)
}
