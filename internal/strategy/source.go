/*

This file contains snapshot sources: where the engine gets the strategy
state it plans against. The file source reads a JSON snapshot captured from
the chain; live deployments implement the same interface over RPC reads.

*/

package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/meridianfi/sve/internal/types"
)

// SnapshotSource supplies the current strategy state ahead of each planning
// cycle.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (types.StrategySnapshot, error)
}

// FileSource loads a snapshot from a JSON file on every call, so an updated
// file is picked up by the next cycle without a restart.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Snapshot(_ context.Context) (types.StrategySnapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return types.StrategySnapshot{}, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var snap types.StrategySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return types.StrategySnapshot{}, fmt.Errorf("failed to parse snapshot file: %w", err)
	}
	if err := types.ValidateItems(snap.Items); err != nil {
		return types.StrategySnapshot{}, fmt.Errorf("snapshot items: %w", err)
	}
	return snap, nil
}

// StaticSource returns a fixed snapshot, useful for one-shot planning and
// tests.
type StaticSource struct {
	Snap types.StrategySnapshot
}

func (s StaticSource) Snapshot(_ context.Context) (types.StrategySnapshot, error) {
	return s.Snap, nil
}
