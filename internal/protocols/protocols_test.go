package protocols

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.BytesToAddress([]byte{0x01})
	tokenB = common.BytesToAddress([]byte{0x02})
	tokenC = common.BytesToAddress([]byte{0x03})
)

func TestFlatEstimator(t *testing.T) {
	e := NewFlatEstimator()

	out, err := e.Estimate(context.Background(), sdkmath.NewInt(500), tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(500), out)

	// a degenerate same-token hop is worth nothing, not a passthrough
	out, err = e.Estimate(context.Background(), sdkmath.NewInt(500), tokenA, tokenA)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}

type fakeRates struct {
	wrappers map[common.Address]sdkmath.Int
}

func (f fakeRates) IsWrapper(_ context.Context, token common.Address) (bool, error) {
	_, ok := f.wrappers[token]
	return ok, nil
}

func (f fakeRates) ExchangeRate(_ context.Context, wrapper common.Address) (sdkmath.Int, error) {
	return f.wrappers[wrapper], nil
}

func TestLendingRateEstimator(t *testing.T) {
	// tokenA wraps tokenB at a 2.0 exchange rate
	rates := fakeRates{wrappers: map[common.Address]sdkmath.Int{
		tokenA: sdkmath.NewIntWithDecimal(2, 18),
	}}
	e := NewLendingRateEstimator(rates)

	t.Run("unwrap multiplies by the rate", func(t *testing.T) {
		out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), tokenA, tokenB)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(200), out)
	})

	t.Run("wrap divides by the rate", func(t *testing.T) {
		out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), tokenB, tokenA)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(50), out)
	})

	t.Run("neither side a wrapper degrades to zero", func(t *testing.T) {
		out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), tokenB, tokenC)
		require.NoError(t, err)
		assert.True(t, out.IsZero())
	})

	t.Run("both sides wrappers degrades to zero", func(t *testing.T) {
		both := fakeRates{wrappers: map[common.Address]sdkmath.Int{
			tokenA: sdkmath.NewIntWithDecimal(2, 18),
			tokenB: sdkmath.NewIntWithDecimal(3, 18),
		}}
		out, err := NewLendingRateEstimator(both).Estimate(context.Background(), sdkmath.NewInt(100), tokenA, tokenB)
		require.NoError(t, err)
		assert.True(t, out.IsZero())
	})
}

type fakeVaults struct {
	underlying map[common.Address]common.Address
	price      sdkmath.Int
	decimals   uint8
}

func (f fakeVaults) Underlying(_ context.Context, vault common.Address) (common.Address, bool, error) {
	u, ok := f.underlying[vault]
	return u, ok, nil
}

func (f fakeVaults) PricePerShare(_ context.Context, _ common.Address) (sdkmath.Int, error) {
	return f.price, nil
}

func (f fakeVaults) Decimals(_ context.Context, _ common.Address) (uint8, error) {
	return f.decimals, nil
}

func TestVaultShareEstimator(t *testing.T) {
	// tokenA is a vault over tokenB, share price 1.5 at 6 decimals
	vaults := fakeVaults{
		underlying: map[common.Address]common.Address{tokenA: tokenB},
		price:      sdkmath.NewInt(1_500_000),
		decimals:   6,
	}
	e := NewVaultShareEstimator(vaults)

	t.Run("deposit converts underlying to shares", func(t *testing.T) {
		out, err := e.Estimate(context.Background(), sdkmath.NewInt(300), tokenB, tokenA)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(200), out)
	})

	t.Run("withdraw converts shares to underlying", func(t *testing.T) {
		out, err := e.Estimate(context.Background(), sdkmath.NewInt(200), tokenA, tokenB)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(300), out)
	})

	t.Run("unrelated pairing degrades to zero", func(t *testing.T) {
		out, err := e.Estimate(context.Background(), sdkmath.NewInt(200), tokenB, tokenC)
		require.NoError(t, err)
		assert.True(t, out.IsZero())
	})

	t.Run("mutually wrapping vaults degrade to zero", func(t *testing.T) {
		// each token claims the other as underlying: both orientations hold
		// at once, so the pairing is ambiguous and must not convert
		mutual := fakeVaults{
			underlying: map[common.Address]common.Address{tokenA: tokenB, tokenB: tokenA},
			price:      sdkmath.NewInt(1_500_000),
			decimals:   6,
		}
		out, err := NewVaultShareEstimator(mutual).Estimate(context.Background(), sdkmath.NewInt(200), tokenA, tokenB)
		require.NoError(t, err)
		assert.True(t, out.IsZero())

		out, err = NewVaultShareEstimator(mutual).Estimate(context.Background(), sdkmath.NewInt(200), tokenB, tokenA)
		require.NoError(t, err)
		assert.True(t, out.IsZero())
	})
}

type fakeQuoter struct{}

func (fakeQuoter) QuoteExactInput(_ context.Context, amount sdkmath.Int, _, _ common.Address, _ uint32) (sdkmath.Int, error) {
	return amount, nil
}

func TestConcentratedEstimatorMissingTierIsHard(t *testing.T) {
	tiers := NewStaticFeeTiers()
	tiers.Register(tokenA, tokenB, 3000)
	e := NewConcentratedEstimator(tiers, fakeQuoter{})

	out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), tokenB, tokenA)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), out)

	// unregistered pair: structural failure, not a soft zero
	_, err = e.Estimate(context.Background(), sdkmath.NewInt(100), tokenA, tokenC)
	assert.ErrorIs(t, err, ErrNoFeeTier)
}

func TestStaticFeeTiersUnorderedLookup(t *testing.T) {
	tiers := NewStaticFeeTiers()
	tiers.Register(tokenB, tokenA, 500)

	fee, ok := tiers.FeeTier(tokenA, tokenB)
	require.True(t, ok)
	assert.Equal(t, uint32(500), fee)
}

type fakeStableSwap struct {
	pool  common.Address
	coins []common.Address
}

func (f fakeStableSwap) PoolFor(_ context.Context, tokenIn, tokenOut common.Address) (common.Address, bool, error) {
	in, out := false, false
	for _, c := range f.coins {
		if c == tokenIn {
			in = true
		}
		if c == tokenOut {
			out = true
		}
	}
	return f.pool, in && out, nil
}

func (f fakeStableSwap) CoinIndex(_ context.Context, _, token common.Address) (int, bool, error) {
	for i, c := range f.coins {
		if c == token {
			return i, false, nil
		}
	}
	return 0, false, assert.AnError
}

func (f fakeStableSwap) QuoteSwap(_ context.Context, _ common.Address, i, j int, _ bool, dx sdkmath.Int) (sdkmath.Int, error) {
	return dx.SubRaw(1), nil // one unit of rounding, like real pool math
}

func TestStableSwapEstimator(t *testing.T) {
	reader := fakeStableSwap{pool: tokenC, coins: []common.Address{tokenA, tokenB}}
	e := NewStableSwapEstimator(reader)

	out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(99), out)

	// missing pool is a market condition: zero, no error
	out, err = e.Estimate(context.Background(), sdkmath.NewInt(100), tokenA, tokenC)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}
