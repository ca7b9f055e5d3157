/*

This file contains the cycle runner: the orchestrator that drives one
estimation cycle end to end. Each cycle applies any matured timelock
changes, takes a fresh strategy snapshot, builds a trade plan and persists
it. The runner owns no market logic; it sequences the pieces and records
what happened.

*/

package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/meridianfi/sve/internal/logger"
	"github.com/meridianfi/sve/internal/rebalance"
	"github.com/meridianfi/sve/internal/state"
	"github.com/meridianfi/sve/internal/strategy"
	"github.com/meridianfi/sve/internal/timelock"
	"github.com/meridianfi/sve/internal/types"
)

// Runner drives estimation cycles for one strategy.
type Runner struct {
	logger   zerolog.Logger
	strategy common.Address
	source   strategy.SnapshotSource
	engine   *rebalance.Engine
	locks    *timelock.Timelock
	persist  bool

	mu            sync.Mutex
	itemsOverride []types.Item
}

// Config holds the dependencies for creating a new Runner.
type Config struct {
	Strategy common.Address
	Source   strategy.SnapshotSource
	Engine   *rebalance.Engine
	Timelock *timelock.Timelock
	// Persist controls whether plans and cycle numbers are written to the
	// database. One-shot planning runs disable it.
	Persist bool
}

func New(cfg Config) (*Runner, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("snapshot source cannot be nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("rebalance engine cannot be nil")
	}
	if cfg.Timelock == nil {
		return nil, fmt.Errorf("timelock cannot be nil")
	}
	return &Runner{
		logger:   logger.GetForComponent("runner"),
		strategy: cfg.Strategy,
		source:   cfg.Source,
		engine:   cfg.Engine,
		locks:    cfg.Timelock,
		persist:  cfg.Persist,
	}, nil
}

// RestoreTimelocks replays persisted open changes into the timelock.
func (r *Runner) RestoreTimelocks() error {
	changes, err := state.LoadOpenTimelockChanges()
	if err != nil {
		return err
	}
	for _, change := range changes {
		if err := r.locks.Restore(change); err != nil {
			return fmt.Errorf("restoring %s change: %w", change.Kind, err)
		}
	}
	if len(changes) > 0 {
		r.logger.Info().Int("count", len(changes)).Msg("Restored pending timelock changes")
	}
	return nil
}

// RunCycle executes one full estimation cycle and returns the plan it
// built. A strategy already inside its bands yields a plan with no steps.
func (r *Runner) RunCycle(ctx context.Context) (*types.TradePlan, error) {
	cycleID := uuid.New().String()
	cycleLog := r.logger.With().Str("cycleID", cycleID).Logger()

	cycleNumber := 0
	if r.persist {
		var err error
		cycleNumber, err = state.IncrementCycleNumber()
		if err != nil {
			return nil, fmt.Errorf("cycle counter: %w", err)
		}
	}
	cycleLog.Info().Int("cycle", cycleNumber).Msg("Cycle started")

	r.applyMaturedChanges(cycleLog)

	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if snap.Strategy == (common.Address{}) {
		snap.Strategy = r.strategy
	}
	var plan *types.TradePlan
	if override := r.currentOverride(); override != nil {
		// A finalized restructure plans the migration path: residual
		// balances in dropped tokens are liquidated before the new
		// targets are rebalanced against.
		plan, err = r.engine.PlanRestructure(ctx, snap, override)
	} else {
		plan, err = r.engine.BuildPlan(ctx, snap)
	}
	if err != nil {
		cycleLog.Error().Err(err).Msg("Cycle failed")
		return nil, err
	}

	if r.persist {
		if err := state.SaveTradePlan(plan, cycleNumber); err != nil {
			cycleLog.Error().Err(err).Str("planID", plan.PlanID).Msg("Failed to persist trade plan")
		}
	}

	cycleLog.Info().
		Str("planID", plan.PlanID).
		Int("steps", len(plan.Steps)).
		Str("totalValue", plan.TotalValue.String()).
		Msg("Cycle completed")
	return plan, nil
}

// applyMaturedChanges finalizes any matured timelock change before the
// cycle plans. Immature or absent changes are not an error.
func (r *Runner) applyMaturedChanges(cycleLog zerolog.Logger) {
	if change, err := r.locks.Finalize(r.strategy, timelock.KindParams); err == nil {
		if applyErr := r.engine.SetParams(*change.NewParams); applyErr != nil {
			cycleLog.Error().Err(applyErr).Msg("Failed to apply matured params change")
		} else {
			if r.persist {
				if saveErr := state.SaveActiveParams(r.strategy, *change.NewParams); saveErr != nil {
					cycleLog.Error().Err(saveErr).Msg("Failed to persist params version")
				}
				if markErr := state.MarkTimelockFinalized(change); markErr != nil {
					cycleLog.Error().Err(markErr).Msg("Failed to mark params change finalized")
				}
			}
			cycleLog.Info().Msg("Applied matured params change")
		}
	} else if !errors.Is(err, timelock.ErrNoPendingChange) && !errors.Is(err, timelock.ErrTimelockNotMatured) {
		cycleLog.Error().Err(err).Msg("Params timelock check failed")
	}

	if change, err := r.locks.Finalize(r.strategy, timelock.KindRestructure); err == nil {
		r.mu.Lock()
		r.itemsOverride = change.NewItems
		r.mu.Unlock()
		if r.persist {
			if markErr := state.MarkTimelockFinalized(change); markErr != nil {
				cycleLog.Error().Err(markErr).Msg("Failed to mark restructure finalized")
			}
		}
		cycleLog.Info().Int("items", len(change.NewItems)).Msg("Applied matured restructure")
	} else if !errors.Is(err, timelock.ErrNoPendingChange) && !errors.Is(err, timelock.ErrTimelockNotMatured) {
		cycleLog.Error().Err(err).Msg("Restructure timelock check failed")
	}
}

func (r *Runner) currentOverride() []types.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.itemsOverride
}

// Schedule registers the cycle on a cron expression and returns the
// started scheduler. The caller stops it on shutdown.
func (r *Runner) Schedule(ctx context.Context, cronExpr string) (*cron.Cron, error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(cronExpr, func() {
		if _, err := r.RunCycle(ctx); err != nil {
			r.logger.Error().Err(err).Msg("Scheduled cycle failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cycle cron expression %q: %w", cronExpr, err)
	}
	scheduler.Start()
	r.logger.Info().Str("cron", cronExpr).Msg("Cycle schedule started")
	return scheduler, nil
}
