/*

This file persists trade plans. Every plan the engine builds is recorded
with its full valuation context so a cycle can be reconstructed after the
fact; the dashboard reads the latest rows back out.

*/

package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/meridianfi/sve/internal/types"
)

// SaveTradePlan records a plan and the cycle it belongs to.
func SaveTradePlan(plan *types.TradePlan, cycleNumber int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	valuationsJSON, err := json.Marshal(plan.Valuations)
	if err != nil {
		return fmt.Errorf("failed to marshal valuations: %w", err)
	}
	stepsJSON, err := json.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	insertSQL := `
		INSERT INTO trade_plans (plan_id, strategy, cycle_number, created_at, total_value, valuations, steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err = DB.Exec(insertSQL,
		plan.PlanID,
		plan.Strategy.Hex(),
		cycleNumber,
		plan.CreatedAt,
		plan.TotalValue.String(),
		valuationsJSON,
		stepsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade plan: %w", err)
	}

	log.Debug().Str("planID", plan.PlanID).Int("cycle", cycleNumber).Msg("Saved trade plan")
	return nil
}

// GetTradePlan loads a single plan by id.
func GetTradePlan(planID string) (*types.TradePlan, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT plan_id, strategy, created_at, total_value, valuations, steps
		FROM trade_plans WHERE plan_id = $1;`

	return scanPlan(DB.QueryRow(query, planID))
}

// GetLatestTradePlan loads the most recently created plan for a strategy.
func GetLatestTradePlan(strategy common.Address) (*types.TradePlan, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT plan_id, strategy, created_at, total_value, valuations, steps
		FROM trade_plans WHERE strategy = $1
		ORDER BY created_at DESC LIMIT 1;`

	return scanPlan(DB.QueryRow(query, strategy.Hex()))
}

func scanPlan(row *sql.Row) (*types.TradePlan, error) {
	var plan types.TradePlan
	var strategyHex, totalValue string
	var valuationsJSON, stepsJSON []byte

	err := row.Scan(&plan.PlanID, &strategyHex, &plan.CreatedAt, &totalValue, &valuationsJSON, &stepsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan trade plan: %w", err)
	}

	plan.Strategy = common.HexToAddress(strategyHex)
	total, ok := sdkmath.NewIntFromString(totalValue)
	if !ok {
		return nil, fmt.Errorf("invalid total_value in trade plan %s: %q", plan.PlanID, totalValue)
	}
	plan.TotalValue = total

	if len(valuationsJSON) > 0 {
		if err := json.Unmarshal(valuationsJSON, &plan.Valuations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal valuations: %w", err)
		}
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &plan.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}
	return &plan, nil
}
