/*

This file contains the rebalance engine: it partitions a strategy's items
into sell and buy sets against their tolerance bands, sequences trades so
the plan never starves itself of reserve capital, and picks the single
trade allowed to settle the entire remaining reserve balance so no dust is
left at the router.

Debt items partition on magnitudes: a debt below its target magnitude
borrows more (proceeds routed per the item's collateral loop), a debt above
it is repaid out of reserve proceeds. Both are computed in one pass at the
fixed target leverage.

*/

package rebalance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridianfi/sve/internal/estimator"
	"github.com/meridianfi/sve/internal/logger"
	"github.com/meridianfi/sve/internal/types"
)

var (
	ErrRebalanceInProgress  = errors.New("rebalance already in progress for strategy")
	ErrTotalNotPositive     = errors.New("strategy total value is not positive")
	ErrDepositNotPositive   = errors.New("deposit amount must be positive")
	ErrWithdrawNotPositive  = errors.New("withdraw amount must be positive")
	ErrWithdrawExceedsTotal = errors.New("withdraw amount exceeds strategy value")
)

// Engine builds trade plans for strategies.
type Engine struct {
	valuer *estimator.Valuer
	params types.RebalanceParams
	log    zerolog.Logger

	mu     sync.Mutex
	active map[common.Address]bool
}

func NewEngine(valuer *estimator.Valuer, params types.RebalanceParams) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("rebalance params: %w", err)
	}
	return &Engine{
		valuer: valuer,
		params: params,
		log:    logger.GetForComponent("rebalance_engine"),
		active: make(map[common.Address]bool),
	}, nil
}

// Params returns the engine's current parameters.
func (e *Engine) Params() types.RebalanceParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetParams replaces the engine's parameters. Callers gate this behind the
// timelock.
func (e *Engine) SetParams(params types.RebalanceParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = params
	return nil
}

// acquire flags a strategy as mid-rebalance. Re-entry into the same
// strategy's planning path is rejected; different strategies proceed
// independently.
func (e *Engine) acquire(strategy common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[strategy] {
		return fmt.Errorf("%w: %s", ErrRebalanceInProgress, strategy.Hex())
	}
	e.active[strategy] = true
	return nil
}

func (e *Engine) release(strategy common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, strategy)
}

// BuildPlan produces the ordered trade plan converging every item toward
// its target percentage. Structural validation failures abort before any
// step is emitted; a strategy already inside its tolerance bands yields a
// plan with no steps.
func (e *Engine) BuildPlan(ctx context.Context, snap types.StrategySnapshot) (*types.TradePlan, error) {
	if err := e.acquire(snap.Strategy); err != nil {
		return nil, err
	}
	defer e.release(snap.Strategy)
	return e.buildPlanLocked(ctx, snap)
}

func (e *Engine) buildPlanLocked(ctx context.Context, snap types.StrategySnapshot) (*types.TradePlan, error) {
	if err := types.ValidateItems(snap.Items); err != nil {
		return nil, err
	}
	params := e.Params()

	total, vals, err := e.valuer.ValueStrategy(ctx, snap, params)
	if err != nil {
		return nil, err
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrTotalNotPositive, total.String())
	}

	plan := &types.TradePlan{
		PlanID:     uuid.New().String(),
		Strategy:   snap.Strategy,
		CreatedAt:  time.Now().UTC(),
		TotalValue: total,
		Valuations: vals,
	}

	reserveBal := snap.ReserveBalance
	if reserveBal.IsNil() {
		reserveBal = sdkmath.ZeroInt()
	}

	reserveIdx := -1
	for i, item := range snap.Items {
		if item.Category == types.CategoryReserve {
			reserveIdx = i
		}
	}
	reserveVal := vals[reserveIdx]
	reserveDeficit := reserveVal.Value.LT(reserveVal.Expected.Sub(reserveVal.Range))
	reserveSurplus := reserveVal.Value.GT(reserveVal.Expected.Add(reserveVal.Range))

	// Sell phase: shed surpluses back into the reserve, and raise debt
	// positions below their target magnitude. Both run before any reserve
	// is spent.
	sold := make([]bool, len(snap.Items))
	for i, item := range snap.Items {
		if item.Category == types.CategoryReserve {
			continue
		}
		val := vals[i]

		if item.Category == types.CategoryDebt {
			steps, handled := e.planBorrowIncrease(item, val)
			if handled {
				plan.Steps = append(plan.Steps, steps...)
				sold[i] = true
			}
			continue
		}

		if !val.Value.GT(val.Expected.Add(val.Range)) {
			continue
		}
		surplus := val.Value.Sub(val.Expected)
		// pro-rata conversion of the reserve-denominated surplus into
		// item units
		sellAmount := val.Balance.Mul(surplus).Quo(val.Value)
		if !sellAmount.IsPositive() {
			continue
		}
		expectedOut, err := e.valuer.Paths().EstimateSellPath(ctx, item.TradeData, sellAmount, item.Token)
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, types.TradeStep{
			Action:      types.ActionSell,
			Token:       item.Token,
			Amount:      sellAmount,
			ExpectedOut: expectedOut,
			MinOut:      expectedOut.MulRaw(params.Slippage).QuoRaw(types.Divisor),
		})
		reserveBal = reserveBal.Add(expectedOut)
		sold[i] = true
	}

	// Buy phase: cover deficits out of the accumulated reserve. The last
	// non-debt deficit in canonical order settles the entire remaining
	// balance, unless the reserve itself must retain a deficit, in which
	// case the closing transfer absorbs the remainder instead.
	settleIdx := -1
	if !reserveDeficit {
		for i, item := range snap.Items {
			if sold[i] || item.Category == types.CategoryReserve || item.Category == types.CategoryDebt {
				continue
			}
			if isDeficit(vals[i]) {
				settleIdx = i
			}
		}
	}

	for i, item := range snap.Items {
		if sold[i] || item.Category == types.CategoryReserve {
			continue
		}
		val := vals[i]

		if item.Category == types.CategoryDebt {
			step, handled := e.planRepay(val)
			if handled {
				plan.Steps = append(plan.Steps, step)
				reserveBal = reserveBal.Sub(step.Amount)
			}
			continue
		}

		if !isDeficit(val) {
			continue
		}

		if i == settleIdx {
			plan.Steps = append(plan.Steps, types.TradeStep{
				Action:      types.ActionSettle,
				Token:       item.Token,
				Amount:      reserveBal,
				FullBalance: true,
			})
			reserveBal = sdkmath.ZeroInt()
			continue
		}

		amount := estimator.EstimateBuyItem(item, val.Value, val.Expected, val.Range)
		if !amount.IsPositive() {
			continue
		}
		amount = amount.MulRaw(params.Fee).QuoRaw(types.Divisor)
		plan.Steps = append(plan.Steps, types.TradeStep{
			Action: types.ActionBuy,
			Token:  item.Token,
			Amount: amount,
		})
		reserveBal = reserveBal.Sub(amount)
	}

	// Reserve movement is finalized as a plain transfer, never a trade. A
	// full-balance transfer closes a reserve deficit so rounding dust ends
	// up inside the strategy, not at the router.
	switch {
	case reserveDeficit:
		plan.Steps = append(plan.Steps, types.TradeStep{
			Action:      types.ActionTransfer,
			Token:       reserveVal.Token,
			Amount:      reserveBal,
			FullBalance: true,
		})
	case reserveSurplus:
		plan.Steps = append(plan.Steps, types.TradeStep{
			Action: types.ActionTransfer,
			Token:  reserveVal.Token,
			Amount: reserveVal.Value.Sub(reserveVal.Expected),
		})
	}

	e.log.Info().
		Str("strategy", snap.Strategy.Hex()).
		Str("plan_id", plan.PlanID).
		Str("total", total.String()).
		Int("steps", len(plan.Steps)).
		Msg("Trade plan built")

	return plan, nil
}

// isDeficit reports whether an item sits below its buy boundary. A zero
// value is the cold-start case and always counts as fully deficient.
func isDeficit(val types.ItemValuation) bool {
	if !val.Expected.IsPositive() {
		return false
	}
	if val.Value.IsZero() {
		return true
	}
	return val.Value.LT(val.Expected.Sub(val.Range))
}

// planBorrowIncrease raises a debt position whose magnitude fell below its
// target band. The borrow delta is computed once at the fixed target; the
// swapped proceeds are routed into collateral per the item's loop list, so
// the reserve balance is untouched.
func (e *Engine) planBorrowIncrease(item types.Item, val types.ItemValuation) ([]types.TradeStep, bool) {
	magnitude := val.Value.Abs()
	target := val.Expected.Abs()
	if !magnitude.LT(target.Sub(val.Range)) {
		return nil, false
	}
	delta := target.Sub(magnitude)
	if !delta.IsPositive() {
		return nil, false
	}

	steps := []types.TradeStep{{
		Action: types.ActionBuy,
		Token:  item.Token,
		Amount: delta,
	}}
	if cache := item.TradeData.Cache; cache != nil && cache.Kind == types.CacheCollateralLoop {
		for _, loop := range cache.Loops {
			steps = append(steps, types.TradeStep{
				Action: types.ActionBuy,
				Token:  loop.Collateral,
				Amount: delta.MulRaw(loop.Percentage).QuoRaw(types.Divisor),
			})
		}
	}
	return steps, true
}

// planRepay unwinds a debt position whose magnitude exceeds its target
// band, spending reserve proceeds.
func (e *Engine) planRepay(val types.ItemValuation) (types.TradeStep, bool) {
	magnitude := val.Value.Abs()
	target := val.Expected.Abs()
	if !magnitude.GT(target.Add(val.Range)) {
		return types.TradeStep{}, false
	}
	delta := magnitude.Sub(target)
	return types.TradeStep{
		Action: types.ActionSell,
		Token:  val.Token,
		Amount: delta,
	}, true
}

// PlanRestructure plans the migration from the strategy's current item set
// to a new one. Balances held in tokens the new set drops are liquidated
// back to the reserve first, so no residual value is stranded outside the
// plan; the proceeds then fund a regular plan against the new targets.
// Dropped debt positions are repaid in full, consuming reserve proceeds.
func (e *Engine) PlanRestructure(ctx context.Context, snap types.StrategySnapshot, newItems []types.Item) (*types.TradePlan, error) {
	if err := e.acquire(snap.Strategy); err != nil {
		return nil, err
	}
	defer e.release(snap.Strategy)

	if err := types.ValidateItems(snap.Items); err != nil {
		return nil, err
	}
	if err := types.ValidateItems(newItems); err != nil {
		return nil, err
	}
	params := e.Params()

	kept := make(map[common.Address]bool, len(newItems))
	for _, item := range newItems {
		kept[item.Token] = true
	}

	reserveBal := snap.ReserveBalance
	if reserveBal.IsNil() {
		reserveBal = sdkmath.ZeroInt()
	}

	migrated := snap
	migrated.Items = newItems
	migrated.Balances = make(map[common.Address]sdkmath.Int, len(snap.Balances))
	for token, bal := range snap.Balances {
		migrated.Balances[token] = bal
	}

	var migration []types.TradeStep
	for _, item := range snap.Items {
		if item.Category == types.CategoryReserve || kept[item.Token] {
			continue
		}
		balance := snap.Balance(item.Token)
		if !balance.IsPositive() {
			continue
		}
		expectedOut, err := e.valuer.Paths().EstimateSellPath(ctx, item.TradeData, balance, item.Token)
		if err != nil {
			return nil, err
		}

		if item.Category == types.CategoryDebt {
			migration = append(migration, types.TradeStep{
				Action:      types.ActionSell,
				Token:       item.Token,
				Amount:      balance,
				FullBalance: true,
			})
			reserveBal = reserveBal.Sub(expectedOut)
		} else {
			migration = append(migration, types.TradeStep{
				Action:      types.ActionSell,
				Token:       item.Token,
				Amount:      balance,
				FullBalance: true,
				ExpectedOut: expectedOut,
				MinOut:      expectedOut.MulRaw(params.Slippage).QuoRaw(types.Divisor),
			})
			reserveBal = reserveBal.Add(expectedOut)
		}
		delete(migrated.Balances, item.Token)
	}
	migrated.ReserveBalance = reserveBal

	plan, err := e.buildPlanLocked(ctx, migrated)
	if err != nil {
		return nil, err
	}
	plan.Steps = append(migration, plan.Steps...)

	e.log.Info().
		Str("strategy", snap.Strategy.Hex()).
		Str("plan_id", plan.PlanID).
		Int("liquidations", len(migration)).
		Int("steps", len(plan.Steps)).
		Msg("Restructure plan built")

	return plan, nil
}

// PlanDeposit plans the proportional purchase of every item out of a fresh
// reserve deposit. A deposit is a rebalance against a snapshot whose free
// reserve balance grew by the deposited amount.
func (e *Engine) PlanDeposit(ctx context.Context, snap types.StrategySnapshot, amount sdkmath.Int) (*types.TradePlan, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return nil, ErrDepositNotPositive
	}
	if err := e.acquire(snap.Strategy); err != nil {
		return nil, err
	}
	defer e.release(snap.Strategy)

	funded := snap
	base := snap.ReserveBalance
	if base.IsNil() {
		base = sdkmath.ZeroInt()
	}
	funded.ReserveBalance = base.Add(amount)
	return e.buildPlanLocked(ctx, funded)
}

// PlanWithdraw plans selling down every item pro rata to free the requested
// reserve value, closing with a transfer out. Debt positions are repaid
// proportionally so the strategy's leverage is preserved.
func (e *Engine) PlanWithdraw(ctx context.Context, snap types.StrategySnapshot, value sdkmath.Int) (*types.TradePlan, error) {
	if value.IsNil() || !value.IsPositive() {
		return nil, ErrWithdrawNotPositive
	}
	if err := e.acquire(snap.Strategy); err != nil {
		return nil, err
	}
	defer e.release(snap.Strategy)

	if err := types.ValidateItems(snap.Items); err != nil {
		return nil, err
	}
	params := e.Params()
	total, vals, err := e.valuer.ValueStrategy(ctx, snap, params)
	if err != nil {
		return nil, err
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrTotalNotPositive, total.String())
	}
	if value.GT(total) {
		return nil, fmt.Errorf("%w: %s > %s", ErrWithdrawExceedsTotal, value.String(), total.String())
	}

	plan := &types.TradePlan{
		PlanID:     uuid.New().String(),
		Strategy:   snap.Strategy,
		CreatedAt:  time.Now().UTC(),
		TotalValue: total,
		Valuations: vals,
	}

	for i, item := range snap.Items {
		if item.Category == types.CategoryReserve {
			continue
		}
		val := vals[i]
		if val.Value.IsZero() {
			continue
		}

		share := val.Value.Abs().Mul(value).Quo(total)
		if !share.IsPositive() {
			continue
		}

		if item.Category == types.CategoryDebt {
			plan.Steps = append(plan.Steps, types.TradeStep{
				Action: types.ActionSell,
				Token:  item.Token,
				Amount: share,
			})
			continue
		}

		sellAmount := val.Balance.Mul(share).Quo(val.Value)
		if !sellAmount.IsPositive() {
			continue
		}
		expectedOut, err := e.valuer.Paths().EstimateSellPath(ctx, item.TradeData, sellAmount, item.Token)
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, types.TradeStep{
			Action:      types.ActionSell,
			Token:       item.Token,
			Amount:      sellAmount,
			ExpectedOut: expectedOut,
			MinOut:      expectedOut.MulRaw(params.Slippage).QuoRaw(types.Divisor),
		})
	}

	plan.Steps = append(plan.Steps, types.TradeStep{
		Action: types.ActionTransfer,
		Token:  e.valuer.Paths().Reserve(),
		Amount: value,
	})

	e.log.Info().
		Str("strategy", snap.Strategy.Hex()).
		Str("plan_id", plan.PlanID).
		Str("withdraw_value", value.String()).
		Int("steps", len(plan.Steps)).
		Msg("Withdraw plan built")

	return plan, nil
}
