package timelock

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/sve/internal/types"
)

var testStrategy = common.BytesToAddress([]byte{0xFF})

func validItems() []types.Item {
	route := types.TradeData{Adapters: []common.Address{common.BytesToAddress([]byte{0xA1})}}
	return []types.Item{
		{Token: common.BytesToAddress([]byte{0x01}), Category: types.CategoryBasic, Percentage: 1000, TradeData: route},
		{Token: common.BytesToAddress([]byte{0x02}), Category: types.CategoryReserve, Percentage: 0, TradeData: route},
	}
}

// newTestTimelock pins the clock so maturity is a pure timestamp check.
func newTestTimelock(restructureDelay, paramDelay time.Duration) (*Timelock, *time.Time) {
	tl := New(restructureDelay, paramDelay)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tl.now = func() time.Time { return now }
	return tl, &now
}

func TestProposeAndFinalizeParams(t *testing.T) {
	tl, now := newTestTimelock(5*24*time.Hour, 24*time.Hour)

	change, err := tl.ProposeParams(testStrategy, types.DefaultRebalanceParams)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), change.MaturesAt)

	// immature: stays queued
	_, err = tl.Finalize(testStrategy, KindParams)
	assert.ErrorIs(t, err, ErrTimelockNotMatured)
	_, pending := tl.Pending(testStrategy, KindParams)
	assert.True(t, pending)

	// one second short is still immature
	*now = change.MaturesAt.Add(-time.Second)
	_, err = tl.Finalize(testStrategy, KindParams)
	assert.ErrorIs(t, err, ErrTimelockNotMatured)

	*now = change.MaturesAt
	finalized, err := tl.Finalize(testStrategy, KindParams)
	require.NoError(t, err)
	require.NotNil(t, finalized.NewParams)
	assert.Equal(t, types.DefaultRebalanceParams, *finalized.NewParams)

	// consumed: a second finalize finds nothing
	_, err = tl.Finalize(testStrategy, KindParams)
	assert.ErrorIs(t, err, ErrNoPendingChange)
}

func TestProposeRestructureValidatesItems(t *testing.T) {
	tl, _ := newTestTimelock(time.Hour, time.Hour)

	bad := validItems()
	bad[0].Percentage = 900
	_, err := tl.ProposeRestructure(testStrategy, bad)
	assert.ErrorIs(t, err, types.ErrPercentageClosure)

	_, err = tl.ProposeRestructure(testStrategy, validItems())
	require.NoError(t, err)
}

func TestOnePendingChangePerKind(t *testing.T) {
	tl, _ := newTestTimelock(time.Hour, time.Hour)

	_, err := tl.ProposeParams(testStrategy, types.DefaultRebalanceParams)
	require.NoError(t, err)
	_, err = tl.ProposeParams(testStrategy, types.DefaultRebalanceParams)
	assert.ErrorIs(t, err, ErrChangePending)

	// a different kind queues independently
	_, err = tl.ProposeRestructure(testStrategy, validItems())
	assert.NoError(t, err)

	// and a different strategy too
	other := common.BytesToAddress([]byte{0xEE})
	_, err = tl.ProposeParams(other, types.DefaultRebalanceParams)
	assert.NoError(t, err)
}

func TestCancelDiscardsChange(t *testing.T) {
	tl, _ := newTestTimelock(time.Hour, time.Hour)

	assert.ErrorIs(t, tl.Cancel(testStrategy, KindParams), ErrNoPendingChange)

	_, err := tl.ProposeParams(testStrategy, types.DefaultRebalanceParams)
	require.NoError(t, err)
	require.NoError(t, tl.Cancel(testStrategy, KindParams))

	_, err = tl.Finalize(testStrategy, KindParams)
	assert.ErrorIs(t, err, ErrNoPendingChange)
}

func TestRestoreKeepsOriginalTimestamps(t *testing.T) {
	tl, now := newTestTimelock(time.Hour, time.Hour)

	params := types.DefaultRebalanceParams
	change := PendingChange{
		Kind:       KindParams,
		Strategy:   testStrategy,
		ProposedAt: now.Add(-2 * time.Hour),
		MaturesAt:  now.Add(-time.Hour),
		NewParams:  &params,
	}
	require.NoError(t, tl.Restore(change))

	// restored change already matured
	finalized, err := tl.Finalize(testStrategy, KindParams)
	require.NoError(t, err)
	assert.Equal(t, change.MaturesAt, finalized.MaturesAt)

	assert.ErrorIs(t, tl.Restore(PendingChange{Kind: KindParams, Strategy: testStrategy}), ErrEmptyChange)
}
