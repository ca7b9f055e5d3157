/*

This file contains the path estimator: it walks an item's declared trade
route and composes the per-hop protocol estimates into an end-to-end output
amount. Hops are strictly sequential; each hop's output feeds the next
hop's input.

*/

package estimator

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianfi/sve/internal/registry"
	"github.com/meridianfi/sve/internal/types"
)

// PathEstimator composes per-hop estimates along a trade path anchored at
// the strategy's reserve asset.
type PathEstimator struct {
	adapters *registry.AdapterRegistry
	reserve  common.Address
}

func NewPathEstimator(adapters *registry.AdapterRegistry, reserve common.Address) *PathEstimator {
	return &PathEstimator{adapters: adapters, reserve: reserve}
}

// Reserve returns the reserve asset all estimates are denominated in.
func (p *PathEstimator) Reserve() common.Address {
	return p.reserve
}

// EstimateBuyPath predicts how much of target an amount of the reserve
// asset buys through the declared route. A non-positive amount returns zero
// without touching any estimator: protocol math may divide by the amount.
func (p *PathEstimator) EstimateBuyPath(ctx context.Context, td types.TradeData, amount sdkmath.Int, target common.Address) (sdkmath.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}

	balance := amount
	hops := len(td.Adapters)
	for i := 0; i < hops; i++ {
		tokenIn := p.reserve
		if i > 0 {
			tokenIn = td.Path[i-1]
		}
		tokenOut := target
		if i < hops-1 {
			tokenOut = td.Path[i]
		}

		out, err := p.adapters.EstimatorFor(td.Adapters[i]).Estimate(ctx, balance, tokenIn, tokenOut)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("buy hop %d (%s -> %s): %w", i, tokenIn.Hex(), tokenOut.Hex(), err)
		}
		if !out.IsPositive() {
			return sdkmath.ZeroInt(), nil
		}
		balance = out
	}
	return balance, nil
}

// EstimateSellPath is the mirror of EstimateBuyPath: it predicts how much
// reserve asset an amount of target sells for, walking the hops in reverse.
func (p *PathEstimator) EstimateSellPath(ctx context.Context, td types.TradeData, amount sdkmath.Int, target common.Address) (sdkmath.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}

	balance := amount
	hops := len(td.Adapters)
	for i := hops - 1; i >= 0; i-- {
		tokenIn := target
		if i < hops-1 {
			tokenIn = td.Path[i]
		}
		tokenOut := p.reserve
		if i > 0 {
			tokenOut = td.Path[i-1]
		}

		out, err := p.adapters.EstimatorFor(td.Adapters[i]).Estimate(ctx, balance, tokenIn, tokenOut)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("sell hop %d (%s -> %s): %w", i, tokenIn.Hex(), tokenOut.Hex(), err)
		}
		if !out.IsPositive() {
			return sdkmath.ZeroInt(), nil
		}
		balance = out
	}
	return balance, nil
}
