/*

This file contains item valuation: the current estimated value of an item's
on-chain balance denominated in the reserve asset, the expected value its
percentage targets, and the buy-amount calculation the rebalance engine
consumes. Per-item valuations across a strategy are independent and run
concurrently; hops inside one item stay sequential.

*/

package estimator

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"golang.org/x/sync/errgroup"

	"github.com/meridianfi/sve/internal/logger"
	"github.com/meridianfi/sve/internal/types"
)

// Valuer computes per-item and strategy-wide valuations.
type Valuer struct {
	paths *PathEstimator
}

func NewValuer(paths *PathEstimator) *Valuer {
	return &Valuer{paths: paths}
}

// Paths exposes the underlying path estimator.
func (v *Valuer) Paths() *PathEstimator {
	return v.paths
}

// ItemValue estimates the current reserve-denominated value of an item's
// balance. The reserve item is worth its balance as-is; a debt item
// contributes the negative of what repaying its balance would cost; every
// other item is worth what selling its balance back to the reserve yields.
func (v *Valuer) ItemValue(ctx context.Context, item types.Item, balance sdkmath.Int) (sdkmath.Int, error) {
	if balance.IsNil() || balance.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if item.Category == types.CategoryReserve {
		return balance, nil
	}

	value, err := v.paths.EstimateSellPath(ctx, item.TradeData, balance, item.Token)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("valuing %s: %w", item.Token.Hex(), err)
	}
	if item.Category == types.CategoryDebt {
		return value.Neg(), nil
	}
	return value, nil
}

// ValueStrategy fans out one valuation task per item and fans the results
// back into the strategy total. Item tasks are independent; cancelling the
// context discards the whole batch, which is safe because estimation has no
// side effects.
func (v *Valuer) ValueStrategy(ctx context.Context, snap types.StrategySnapshot, params types.RebalanceParams) (sdkmath.Int, []types.ItemValuation, error) {
	vals := make([]types.ItemValuation, len(snap.Items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range snap.Items {
		i, item := i, item
		g.Go(func() error {
			balance := snap.Balance(item.Token)
			value, err := v.ItemValue(gctx, item, balance)
			if err != nil {
				return err
			}
			vals[i] = types.ItemValuation{
				Token:    item.Token,
				Category: item.Category,
				Balance:  balance,
				Value:    value,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sdkmath.ZeroInt(), nil, err
	}

	total := snap.ReserveBalance
	if total.IsNil() {
		total = sdkmath.ZeroInt()
	}
	for _, val := range vals {
		total = total.Add(val.Value)
	}

	for i, item := range snap.Items {
		expected := ExpectedValue(total, item.Percentage)
		vals[i].Expected = expected
		vals[i].Range = RebalanceRange(expected, params.Threshold)
	}

	valuerLogger := logger.GetForComponent("valuer")
	valuerLogger.Debug().
		Str("strategy", snap.Strategy.Hex()).
		Str("total", total.String()).
		Int("items", len(vals)).
		Msg("Strategy valuation complete")

	return total, vals, nil
}

// ExpectedValue is the value an item's percentage targets out of the total.
// Negative for debt items.
func ExpectedValue(total sdkmath.Int, percentage int64) sdkmath.Int {
	return total.MulRaw(percentage).QuoRaw(types.Divisor)
}

// RebalanceRange is the tolerance band around an expected value. Computed
// on the magnitude so debt ranges stay non-negative; a larger threshold
// never shrinks the range.
func RebalanceRange(expected sdkmath.Int, threshold int64) sdkmath.Int {
	return expected.Abs().MulRaw(threshold).QuoRaw(types.Divisor)
}

// EstimateBuyItem computes the reserve amount to spend buying an item given
// its current and expected values. A zero current value is the cold-start
// case and buys the full expected value. The deficit formula can go
// negative near the range boundary; it is clamped to zero here. A cache
// multiplier scales the result to model yield or rebase dilution between
// estimation and execution.
func EstimateBuyItem(item types.Item, estimated, expected, rng sdkmath.Int) sdkmath.Int {
	var amount sdkmath.Int
	switch {
	case estimated.IsZero():
		amount = expected
	case estimated.LT(expected.Sub(rng)):
		amount = expected.Sub(estimated)
	default:
		return sdkmath.ZeroInt()
	}
	if amount.IsNegative() {
		amount = sdkmath.ZeroInt()
	}

	if cache := item.TradeData.Cache; cache != nil && cache.Kind == types.CacheMultiplier {
		amount = amount.MulRaw(cache.Multiplier).QuoRaw(types.Divisor)
	}
	return amount
}
