/*

This file persists timelock changes so pending proposals survive a restart.
The runner replays open rows (neither finalized nor cancelled) back into
the in-memory timelock on boot.

*/

package state

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/meridianfi/sve/internal/timelock"
)

// SaveTimelockChange records a freshly proposed change.
func SaveTimelockChange(change timelock.PendingChange) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal timelock change: %w", err)
	}

	insertSQL := `
		INSERT INTO timelock_changes (strategy, kind, proposed_at, matures_at, payload)
		VALUES ($1, $2, $3, $4, $5);`

	if _, err := DB.Exec(insertSQL,
		change.Strategy.Hex(),
		string(change.Kind),
		change.ProposedAt,
		change.MaturesAt,
		payload,
	); err != nil {
		return fmt.Errorf("failed to insert timelock change: %w", err)
	}

	log.Debug().
		Str("strategy", change.Strategy.Hex()).
		Str("kind", string(change.Kind)).
		Msg("Saved timelock change")
	return nil
}

// MarkTimelockFinalized stamps the open change of a kind as finalized.
func MarkTimelockFinalized(change timelock.PendingChange) error {
	return closeTimelockChange(change, "finalized_at")
}

// MarkTimelockCancelled stamps the open change of a kind as cancelled.
func MarkTimelockCancelled(change timelock.PendingChange) error {
	return closeTimelockChange(change, "cancelled_at")
}

func closeTimelockChange(change timelock.PendingChange, column string) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	// column is one of two internal constants, never caller input
	updateSQL := fmt.Sprintf(`
		UPDATE timelock_changes SET %s = CURRENT_TIMESTAMP
		WHERE strategy = $1 AND kind = $2
		  AND finalized_at IS NULL AND cancelled_at IS NULL;`, column)

	if _, err := DB.Exec(updateSQL, change.Strategy.Hex(), string(change.Kind)); err != nil {
		return fmt.Errorf("failed to close timelock change: %w", err)
	}
	return nil
}

// LoadOpenTimelockChanges returns every change that was neither finalized
// nor cancelled.
func LoadOpenTimelockChanges() ([]timelock.PendingChange, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT payload FROM timelock_changes
		WHERE finalized_at IS NULL AND cancelled_at IS NULL
		ORDER BY proposed_at ASC;`

	rows, err := DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open timelock changes: %w", err)
	}
	defer rows.Close()

	var changes []timelock.PendingChange
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan timelock change: %w", err)
		}
		var change timelock.PendingChange
		if err := json.Unmarshal(payload, &change); err != nil {
			return nil, fmt.Errorf("failed to unmarshal timelock change: %w", err)
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timelock changes: %w", err)
	}
	return changes, nil
}
