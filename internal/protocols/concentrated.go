package protocols

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// FeeTierRegistry records which fee tier a concentrated-liquidity pair
// trades through. Pairs are unordered.
type FeeTierRegistry interface {
	FeeTier(tokenA, tokenB common.Address) (uint32, bool)
}

// ConcentratedQuoter is the venue's exact-input quoting entry point.
type ConcentratedQuoter interface {
	QuoteExactInput(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address, feeTier uint32) (sdkmath.Int, error)
}

// ConcentratedEstimator prices swaps on a concentrated-liquidity venue. A
// pair with no registered fee tier fails loudly: a strategy declaring such a
// hop carries a structurally invalid trade path, and the whole plan must
// abort rather than degrade to a zero estimate.
type ConcentratedEstimator struct {
	tiers  FeeTierRegistry
	quoter ConcentratedQuoter
}

func NewConcentratedEstimator(tiers FeeTierRegistry, quoter ConcentratedQuoter) *ConcentratedEstimator {
	return &ConcentratedEstimator{tiers: tiers, quoter: quoter}
}

func (e *ConcentratedEstimator) Estimate(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	fee, ok := e.tiers.FeeTier(tokenIn, tokenOut)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s/%s", ErrNoFeeTier, tokenIn.Hex(), tokenOut.Hex())
	}
	return e.quoter.QuoteExactInput(ctx, amount, tokenIn, tokenOut, fee)
}

// StaticFeeTiers is a FeeTierRegistry backed by a fixed table built at
// environment setup.
type StaticFeeTiers struct {
	tiers map[pairKey]uint32
}

type pairKey struct {
	a, b common.Address
}

func orderedPair(a, b common.Address) pairKey {
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

func NewStaticFeeTiers() *StaticFeeTiers {
	return &StaticFeeTiers{tiers: make(map[pairKey]uint32)}
}

func (r *StaticFeeTiers) Register(tokenA, tokenB common.Address, feeTier uint32) {
	r.tiers[orderedPair(tokenA, tokenB)] = feeTier
}

func (r *StaticFeeTiers) FeeTier(tokenA, tokenB common.Address) (uint32, bool) {
	fee, ok := r.tiers[orderedPair(tokenA, tokenB)]
	return fee, ok
}
