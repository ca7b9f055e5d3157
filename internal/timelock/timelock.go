/*

This file contains the timelock: governance-style two-phase changes for
item-set restructures and parameter updates. A change is proposed with the
full payload, matures after the category's delay, and is only then
finalizable. Maturity is a plain timestamp comparison; nothing here runs a
clock of its own.

*/

package timelock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/meridianfi/sve/internal/logger"
	"github.com/meridianfi/sve/internal/types"
)

var (
	ErrChangePending      = errors.New("a change of this kind is already pending")
	ErrNoPendingChange    = errors.New("no pending change of this kind")
	ErrTimelockNotMatured = errors.New("timelock has not matured")
	ErrEmptyChange        = errors.New("change carries no payload")
)

// ChangeKind is the category of a pending change. Each kind carries its own
// delay and at most one pending change per strategy.
type ChangeKind string

const (
	KindRestructure ChangeKind = "RESTRUCTURE"
	KindParams      ChangeKind = "PARAMS"
)

// PendingChange is a proposed change waiting out its delay.
type PendingChange struct {
	Kind       ChangeKind             `json:"kind"`
	Strategy   common.Address         `json:"strategy"`
	ProposedAt time.Time              `json:"proposed_at"`
	MaturesAt  time.Time              `json:"matures_at"`
	NewItems   []types.Item           `json:"new_items,omitempty"`
	NewParams  *types.RebalanceParams `json:"new_params,omitempty"`
}

type pendingKey struct {
	strategy common.Address
	kind     ChangeKind
}

// Timelock tracks pending changes in memory. Persistence across restarts is
// the store's job; the runner replays unexpired changes back in on boot.
type Timelock struct {
	restructureDelay time.Duration
	paramDelay       time.Duration
	now              func() time.Time
	log              zerolog.Logger

	mu      sync.Mutex
	pending map[pendingKey]PendingChange
}

func New(restructureDelay, paramDelay time.Duration) *Timelock {
	return &Timelock{
		restructureDelay: restructureDelay,
		paramDelay:       paramDelay,
		now:              time.Now,
		log:              logger.GetForComponent("timelock"),
		pending:          make(map[pendingKey]PendingChange),
	}
}

func (t *Timelock) delayFor(kind ChangeKind) time.Duration {
	if kind == KindParams {
		return t.paramDelay
	}
	return t.restructureDelay
}

// ProposeRestructure queues a replacement item set for a strategy. The set
// is validated up front so a malformed proposal can never mature.
func (t *Timelock) ProposeRestructure(strategy common.Address, items []types.Item) (PendingChange, error) {
	if err := types.ValidateItems(items); err != nil {
		return PendingChange{}, err
	}
	return t.propose(PendingChange{
		Kind:     KindRestructure,
		Strategy: strategy,
		NewItems: items,
	})
}

// ProposeParams queues a parameter update for a strategy.
func (t *Timelock) ProposeParams(strategy common.Address, params types.RebalanceParams) (PendingChange, error) {
	if err := params.Validate(); err != nil {
		return PendingChange{}, err
	}
	return t.propose(PendingChange{
		Kind:      KindParams,
		Strategy:  strategy,
		NewParams: &params,
	})
}

func (t *Timelock) propose(change PendingChange) (PendingChange, error) {
	if change.NewItems == nil && change.NewParams == nil {
		return PendingChange{}, ErrEmptyChange
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := pendingKey{strategy: change.Strategy, kind: change.Kind}
	if _, exists := t.pending[key]; exists {
		return PendingChange{}, fmt.Errorf("%w: %s for %s", ErrChangePending, change.Kind, change.Strategy.Hex())
	}

	change.ProposedAt = t.now().UTC()
	change.MaturesAt = change.ProposedAt.Add(t.delayFor(change.Kind))
	t.pending[key] = change

	t.log.Info().
		Str("strategy", change.Strategy.Hex()).
		Str("kind", string(change.Kind)).
		Time("matures_at", change.MaturesAt).
		Msg("Change proposed")

	return change, nil
}

// Pending returns the pending change of a kind, if any.
func (t *Timelock) Pending(strategy common.Address, kind ChangeKind) (PendingChange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	change, ok := t.pending[pendingKey{strategy: strategy, kind: kind}]
	return change, ok
}

// Finalize removes and returns a matured pending change. An immature change
// stays queued and the call fails.
func (t *Timelock) Finalize(strategy common.Address, kind ChangeKind) (PendingChange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := pendingKey{strategy: strategy, kind: kind}
	change, ok := t.pending[key]
	if !ok {
		return PendingChange{}, fmt.Errorf("%w: %s for %s", ErrNoPendingChange, kind, strategy.Hex())
	}
	if t.now().Before(change.MaturesAt) {
		return PendingChange{}, fmt.Errorf("%w: matures at %s", ErrTimelockNotMatured,
			change.MaturesAt.Format(time.RFC3339))
	}

	delete(t.pending, key)
	t.log.Info().
		Str("strategy", strategy.Hex()).
		Str("kind", string(kind)).
		Msg("Change finalized")
	return change, nil
}

// Cancel discards a pending change without applying it.
func (t *Timelock) Cancel(strategy common.Address, kind ChangeKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := pendingKey{strategy: strategy, kind: kind}
	if _, ok := t.pending[key]; !ok {
		return fmt.Errorf("%w: %s for %s", ErrNoPendingChange, kind, strategy.Hex())
	}
	delete(t.pending, key)
	return nil
}

// Restore re-queues a change loaded from persistence, keeping its original
// timestamps.
func (t *Timelock) Restore(change PendingChange) error {
	if change.NewItems == nil && change.NewParams == nil {
		return ErrEmptyChange
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := pendingKey{strategy: change.Strategy, kind: change.Kind}
	if _, exists := t.pending[key]; exists {
		return fmt.Errorf("%w: %s for %s", ErrChangePending, change.Kind, change.Strategy.Hex())
	}
	t.pending[key] = change
	return nil
}
