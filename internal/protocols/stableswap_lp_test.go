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
	coinX   = common.BytesToAddress([]byte{0x11})
	coinY   = common.BytesToAddress([]byte{0x12})
	lpToken = common.BytesToAddress([]byte{0x20})
	poolID  = common.BytesToAddress([]byte{0x21})
	zapID   = common.BytesToAddress([]byte{0x22})
)

// fakeLPReader quotes deposits at 1:1 minus one unit and withdraws at 1:1
// plus one unit, so direction mix-ups show up in the numbers.
type fakeLPReader struct {
	hasZap bool
	signed bool

	lastWithdrawSigned bool
}

func (f *fakeLPReader) PoolForLP(_ context.Context, token common.Address) (common.Address, bool, error) {
	if token == lpToken {
		return poolID, true, nil
	}
	return common.Address{}, false, nil
}

func (f *fakeLPReader) PoolCoins(_ context.Context, pool common.Address) ([]common.Address, error) {
	if pool != poolID {
		return nil, assert.AnError
	}
	return []common.Address{coinX, coinY}, nil
}

func (f *fakeLPReader) QuoteDeposit(_ context.Context, _ common.Address, _ int, amount sdkmath.Int) (sdkmath.Int, error) {
	return amount.SubRaw(1), nil
}

func (f *fakeLPReader) ZapFor(_ context.Context, token common.Address) (common.Address, bool, bool, error) {
	if token == lpToken && f.hasZap {
		return zapID, f.signed, true, nil
	}
	return common.Address{}, false, false, nil
}

func (f *fakeLPReader) QuoteWithdraw(_ context.Context, _ common.Address, amount sdkmath.Int, _ int, signed bool) (sdkmath.Int, error) {
	f.lastWithdrawSigned = signed
	return amount.AddRaw(1), nil
}

func TestStableSwapLPDeposit(t *testing.T) {
	reader := &fakeLPReader{hasZap: true}
	e := NewStableSwapLPEstimator(reader, nil)

	out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), coinX, lpToken)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(99), out)
}

func TestStableSwapLPWithdrawThroughZap(t *testing.T) {
	reader := &fakeLPReader{hasZap: true, signed: true}
	e := NewStableSwapLPEstimator(reader, nil)

	out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), lpToken, coinY)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(101), out)
	// the zap's index convention must be forwarded
	assert.True(t, reader.lastWithdrawSigned)
}

func TestStableSwapLPWithdrawWithoutZapIsZero(t *testing.T) {
	reader := &fakeLPReader{hasZap: false}
	e := NewStableSwapLPEstimator(reader, nil)

	out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), lpToken, coinY)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}

func TestStableSwapLPUnrelatedCoinIsZero(t *testing.T) {
	reader := &fakeLPReader{hasZap: true}
	e := NewStableSwapLPEstimator(reader, nil)

	stranger := common.BytesToAddress([]byte{0x77})
	out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), stranger, lpToken)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}

func TestStableSwapLPFallbackPool(t *testing.T) {
	reader := &fakeLPReader{}
	hardcodedLP := common.BytesToAddress([]byte{0x30})
	e := NewStableSwapLPEstimator(reader, []FallbackPool{{
		LPToken: hardcodedLP,
		Pool:    poolID,
		Coins:   []common.Address{coinX, coinY},
	}})

	// deposit orientation through the fallback table
	out, err := e.Estimate(context.Background(), sdkmath.NewInt(100), coinY, hardcodedLP)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(99), out)

	// no entry either way degrades to zero
	out, err = e.Estimate(context.Background(), sdkmath.NewInt(100), coinX, coinY)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}
