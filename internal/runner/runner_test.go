package runner

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/sve/internal/estimator"
	"github.com/meridianfi/sve/internal/rebalance"
	"github.com/meridianfi/sve/internal/registry"
	"github.com/meridianfi/sve/internal/strategy"
	"github.com/meridianfi/sve/internal/timelock"
	"github.com/meridianfi/sve/internal/types"
)

var (
	tokenA       = common.BytesToAddress([]byte{0x01})
	tokenR       = common.BytesToAddress([]byte{0x02})
	tokenB       = common.BytesToAddress([]byte{0x03})
	venueAdapter = common.BytesToAddress([]byte{0xA1})
	strategyAddr = common.BytesToAddress([]byte{0xFF})
)

func testEngine(t *testing.T) *rebalance.Engine {
	t.Helper()
	one := sdkmath.NewIntWithDecimal(1, 18)
	env, err := registry.Build(registry.File{
		Reserve:  tokenR,
		Params:   types.DefaultRebalanceParams,
		Adapters: []registry.FileAdapter{{Address: venueAdapter, Category: "const_product"}},
		Book: registry.BookData{
			Prices: map[common.Address]sdkmath.Int{tokenA: one, tokenR: one, tokenB: one},
		},
	})
	require.NoError(t, err)

	paths := estimator.NewPathEstimator(env.Adapters, env.Reserve)
	engine, err := rebalance.NewEngine(estimator.NewValuer(paths), types.DefaultRebalanceParams)
	require.NoError(t, err)
	return engine
}

func testSnapshot() types.StrategySnapshot {
	route := types.TradeData{Adapters: []common.Address{venueAdapter}}
	return types.StrategySnapshot{
		Strategy: strategyAddr,
		Items: []types.Item{
			{Token: tokenA, Category: types.CategoryBasic, Percentage: 1000, TradeData: route},
			{Token: tokenR, Category: types.CategoryReserve, Percentage: 0, TradeData: route},
		},
		Balances: map[common.Address]sdkmath.Int{
			tokenA: sdkmath.NewInt(500),
		},
		ReserveBalance: sdkmath.ZeroInt(),
	}
}

func newTestRunner(t *testing.T, engine *rebalance.Engine, locks *timelock.Timelock) *Runner {
	t.Helper()
	r, err := New(Config{
		Strategy: strategyAddr,
		Source:   strategy.StaticSource{Snap: testSnapshot()},
		Engine:   engine,
		Timelock: locks,
		Persist:  false,
	})
	require.NoError(t, err)
	return r
}

func TestRunCycleBuildsPlan(t *testing.T) {
	engine := testEngine(t)
	r := newTestRunner(t, engine, timelock.New(time.Hour, time.Hour))

	plan, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, strategyAddr, plan.Strategy)
	// the snapshot is already fully allocated: nothing to trade
	assert.Empty(t, plan.Steps)
}

func TestRunCycleAppliesMaturedParamsChange(t *testing.T) {
	engine := testEngine(t)
	// zero delay: the proposal matures immediately
	locks := timelock.New(0, 0)
	r := newTestRunner(t, engine, locks)

	newParams := types.DefaultRebalanceParams
	newParams.Threshold = 100
	_, err := locks.ProposeParams(strategyAddr, newParams)
	require.NoError(t, err)

	_, err = r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), engine.Params().Threshold)

	// consumed: no pending change remains
	_, pending := locks.Pending(strategyAddr, timelock.KindParams)
	assert.False(t, pending)
}

func TestRunCycleAppliesMaturedRestructure(t *testing.T) {
	engine := testEngine(t)
	locks := timelock.New(0, 0)
	r := newTestRunner(t, engine, locks)

	route := types.TradeData{Adapters: []common.Address{venueAdapter}}
	newItems := []types.Item{
		{Token: tokenA, Category: types.CategoryBasic, Percentage: 500, TradeData: route},
		{Token: tokenR, Category: types.CategoryReserve, Percentage: 500, TradeData: route},
	}
	_, err := locks.ProposeRestructure(strategyAddr, newItems)
	require.NoError(t, err)

	plan, err := r.RunCycle(context.Background())
	require.NoError(t, err)

	// the new 50/50 split makes the fully-allocated snapshot overweight
	require.NotEmpty(t, plan.Steps)
	assert.Equal(t, types.ActionSell, plan.Steps[0].Action)
	assert.Equal(t, tokenA, plan.Steps[0].Token)
}

func TestRunCycleRestructureSellsDroppedBalances(t *testing.T) {
	engine := testEngine(t)
	locks := timelock.New(0, 0)

	route := types.TradeData{Adapters: []common.Address{venueAdapter}}
	snap := types.StrategySnapshot{
		Strategy: strategyAddr,
		Items: []types.Item{
			{Token: tokenA, Category: types.CategoryBasic, Percentage: 600, TradeData: route},
			{Token: tokenR, Category: types.CategoryReserve, Percentage: 0, TradeData: route},
			{Token: tokenB, Category: types.CategoryBasic, Percentage: 400, TradeData: route},
		},
		Balances: map[common.Address]sdkmath.Int{
			tokenA: sdkmath.NewInt(600),
			tokenB: sdkmath.NewInt(400),
		},
		ReserveBalance: sdkmath.ZeroInt(),
	}
	r, err := New(Config{
		Strategy: strategyAddr,
		Source:   strategy.StaticSource{Snap: snap},
		Engine:   engine,
		Timelock: locks,
	})
	require.NoError(t, err)

	newItems := []types.Item{
		{Token: tokenA, Category: types.CategoryBasic, Percentage: 1000, TradeData: route},
		{Token: tokenR, Category: types.CategoryReserve, Percentage: 0, TradeData: route},
	}
	_, err = locks.ProposeRestructure(strategyAddr, newItems)
	require.NoError(t, err)

	plan, err := r.RunCycle(context.Background())
	require.NoError(t, err)

	// the residual tokenB balance is liquidated, so nothing is stranded and
	// the full pre-restructure value carries into the plan
	assert.Equal(t, sdkmath.NewInt(1000), plan.TotalValue)
	require.NotEmpty(t, plan.Steps)
	assert.Equal(t, types.ActionSell, plan.Steps[0].Action)
	assert.Equal(t, tokenB, plan.Steps[0].Token)
	assert.True(t, plan.Steps[0].FullBalance)
	assert.Equal(t, sdkmath.NewInt(400), plan.Steps[0].Amount)
}

func TestNewRunnerValidatesDependencies(t *testing.T) {
	engine := testEngine(t)
	locks := timelock.New(time.Hour, time.Hour)

	_, err := New(Config{Strategy: strategyAddr, Engine: engine, Timelock: locks})
	assert.Error(t, err)

	_, err = New(Config{Strategy: strategyAddr, Source: strategy.StaticSource{}, Timelock: locks})
	assert.Error(t, err)

	_, err = New(Config{Strategy: strategyAddr, Source: strategy.StaticSource{}, Engine: engine})
	assert.Error(t, err)
}
