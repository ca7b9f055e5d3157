package protocols

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// FlatEstimator values 1:1 wrap/unwrap positions (tokenized lending
// collateral and its debt mirror) whose price against the underlying is not
// estimated here. A same-token "swap" is meaningless and must not silently
// pass through.
type FlatEstimator struct{}

func NewFlatEstimator() FlatEstimator {
	return FlatEstimator{}
}

func (FlatEstimator) Estimate(_ context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	if tokenIn == tokenOut {
		return sdkmath.ZeroInt(), nil
	}
	return amount, nil
}
