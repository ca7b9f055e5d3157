/*

This file contains the per-strategy scalar parameters: rebalance threshold,
slippage bound, fee padding and timelock delays. All ratios are fractions
over Divisor. Different versions of these parameters can be stored and
activated through the timelock.

*/

package types

import (
	"errors"
	"fmt"
	"time"
)

// DefaultFee pads buy amounts against AMM swap fees so the buy loop does
// not systematically under-buy. 997 mirrors a 0.3% pool fee.
const DefaultFee int64 = 997

// RebalanceParams holds the tunable scalars of one strategy.
type RebalanceParams struct {
	// Threshold is the tolerance band around an item's expected value,
	// over Divisor. Inside the band no trade is triggered.
	Threshold int64 `json:"threshold"`
	// Slippage is the minimum fraction of an estimated output a trade must
	// deliver, over Divisor. 995 tolerates 0.5% degradation.
	Slippage int64 `json:"slippage"`
	// Fee scales buy amounts to absorb AMM fees, over Divisor.
	Fee int64 `json:"fee"`
	// RestructureDelay gates item-set replacement.
	RestructureDelay time.Duration `json:"restructure_delay"`
	// ParamDelay gates threshold/slippage/fee changes.
	ParamDelay time.Duration `json:"param_delay"`
}

var (
	ErrThresholdRange = errors.New("threshold must be between 0 and the divisor")
	ErrSlippageRange  = errors.New("slippage must be between 0 and the divisor")
	ErrFeeRange       = errors.New("fee must be positive and not exceed the divisor")
	ErrDelayNegative  = errors.New("timelock delays cannot be negative")
)

// Validate checks every scalar for range sanity.
func (p RebalanceParams) Validate() error {
	if p.Threshold < 0 || p.Threshold > Divisor {
		return fmt.Errorf("%w: %d", ErrThresholdRange, p.Threshold)
	}
	if p.Slippage < 0 || p.Slippage > Divisor {
		return fmt.Errorf("%w: %d", ErrSlippageRange, p.Slippage)
	}
	if p.Fee <= 0 || p.Fee > Divisor {
		return fmt.Errorf("%w: %d", ErrFeeRange, p.Fee)
	}
	if p.RestructureDelay < 0 || p.ParamDelay < 0 {
		return ErrDelayNegative
	}
	return nil
}

// DefaultRebalanceParams are the parameters a strategy starts with before
// governance tunes them.
var DefaultRebalanceParams = RebalanceParams{
	Threshold:        50, // 5%
	Slippage:         995,
	Fee:              DefaultFee,
	RestructureDelay: 5 * 24 * time.Hour,
	ParamDelay:       24 * time.Hour,
}
