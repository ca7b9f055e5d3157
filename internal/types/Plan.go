/*

This file contains the plan types emitted by the rebalance engine and the
snapshot types it consumes. A plan is an ordered list of trade steps handed
to the transaction-encoding layer; the on-chain ledger stays the source of
truth for balances, the plan is only a prediction of what to submit.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// TradeAction is the kind of a single plan step.
type TradeAction string

const (
	ActionSell     TradeAction = "SELL"
	ActionBuy      TradeAction = "BUY"
	ActionSettle   TradeAction = "SETTLE"   // spend the entire remaining reserve balance
	ActionTransfer TradeAction = "TRANSFER" // reserve asset moves without a trade
)

// TradeStep is one executable step of a rebalance plan. Amount is in the
// traded token's native unit for SELL steps and in reserve-asset units for
// BUY steps. FullBalance marks the settle trade, which consumes whatever
// reserve balance remains instead of a computed amount.
type TradeStep struct {
	Action      TradeAction    `json:"action"`
	Token       common.Address `json:"token"`
	Amount      sdkmath.Int    `json:"amount"`
	FullBalance bool           `json:"full_balance,omitempty"`

	// Estimation results carried for slippage protection downstream.
	ExpectedOut sdkmath.Int `json:"expected_out,omitempty"`
	MinOut      sdkmath.Int `json:"min_out,omitempty"`
}

// ItemValuation is the per-item estimation snapshot a plan was built from.
// All values are denominated in the reserve asset; debt values are negative.
type ItemValuation struct {
	Token    common.Address `json:"token"`
	Category ItemCategory   `json:"category"`
	Balance  sdkmath.Int    `json:"balance"`
	Value    sdkmath.Int    `json:"value"`
	Expected sdkmath.Int    `json:"expected"`
	Range    sdkmath.Int    `json:"range"`
}

// TradePlan is the ordered output of one rebalance attempt.
type TradePlan struct {
	PlanID     string          `json:"plan_id"`
	Strategy   common.Address  `json:"strategy"`
	CreatedAt  time.Time       `json:"created_at"`
	TotalValue sdkmath.Int     `json:"total_value"`
	Valuations []ItemValuation `json:"valuations"`
	Steps      []TradeStep     `json:"steps"`
}

// StrategySnapshot is the on-chain state the engine plans against, supplied
// by the state reader before each estimation cycle. Balances hold each item
// token's current on-chain amount; ReserveBalance is the free reserve-asset
// balance sitting at the router between trades (normally zero).
type StrategySnapshot struct {
	Strategy       common.Address                 `json:"strategy"`
	Items          []Item                         `json:"items"`
	Balances       map[common.Address]sdkmath.Int `json:"balances"`
	ReserveBalance sdkmath.Int                    `json:"reserve_balance"`
}

// Balance returns the snapshot balance for a token, zero when absent.
func (s StrategySnapshot) Balance(token common.Address) sdkmath.Int {
	if b, ok := s.Balances[token]; ok && !b.IsNil() {
		return b
	}
	return sdkmath.ZeroInt()
}
