/*

This file persists versioned rebalance parameters per strategy. Exactly one
version is active at a time; activating a new version deactivates the old
one inside a single transaction so a crash never leaves two active rows.

*/

package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/meridianfi/sve/internal/types"
)

// SaveActiveParams writes a new parameter version for a strategy and marks
// it active, deactivating any previous version.
func SaveActiveParams(strategy common.Address, params types.RebalanceParams) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid params: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE rebalance_params SET is_active = FALSE WHERE strategy = $1 AND is_active = TRUE;`,
		strategy.Hex(),
	); err != nil {
		return fmt.Errorf("failed to deactivate previous params: %w", err)
	}

	insertSQL := `
		INSERT INTO rebalance_params
			(strategy, version, is_active, activated_at, threshold, slippage, fee,
			 restructure_delay_seconds, param_delay_seconds)
		VALUES ($1,
			COALESCE((SELECT MAX(version) FROM rebalance_params WHERE strategy = $1), 0) + 1,
			TRUE, CURRENT_TIMESTAMP, $2, $3, $4, $5, $6);`

	if _, err := tx.Exec(insertSQL,
		strategy.Hex(),
		params.Threshold,
		params.Slippage,
		params.Fee,
		int64(params.RestructureDelay/time.Second),
		int64(params.ParamDelay/time.Second),
	); err != nil {
		return fmt.Errorf("failed to insert params version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit params version: %w", err)
	}

	log.Info().Str("strategy", strategy.Hex()).Msg("Activated new rebalance params version")
	return nil
}

// GetActiveParams loads the active parameter version for a strategy. The
// second return is false when no version has been persisted yet.
func GetActiveParams(strategy common.Address) (types.RebalanceParams, bool, error) {
	if DB == nil {
		return types.RebalanceParams{}, false, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT threshold, slippage, fee, restructure_delay_seconds, param_delay_seconds
		FROM rebalance_params
		WHERE strategy = $1 AND is_active = TRUE
		ORDER BY activated_at DESC LIMIT 1;`

	var params types.RebalanceParams
	var restructureSecs, paramSecs int64
	row := DB.QueryRow(query, strategy.Hex())
	err := row.Scan(&params.Threshold, &params.Slippage, &params.Fee, &restructureSecs, &paramSecs)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.RebalanceParams{}, false, nil
		}
		return types.RebalanceParams{}, false, fmt.Errorf("failed to load active params: %w", err)
	}

	params.RestructureDelay = time.Duration(restructureSecs) * time.Second
	params.ParamDelay = time.Duration(paramSecs) * time.Second
	return params, true, nil
}
