/*

This file contains the estimator contract shared by every protocol in the
catalog. Estimators are read-only: they consult current on-chain reserves
and rates through narrow reader seams but never mutate anything. A zero
result means "no confident estimate", not an error; hard errors are reserved
for structurally invalid trade paths.

*/

package protocols

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Estimator predicts the output amount of swapping amount of tokenIn into
// tokenOut through one protocol.
type Estimator interface {
	Estimate(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error)
}

var (
	// ErrNoFeeTier aborts plan construction: a concentrated-liquidity hop
	// whose pair has no registered fee tier is a malformed trade path.
	ErrNoFeeTier = errors.New("no fee tier registered for token pair")
)

// rateScale is the fixed-point scale of external exchange rates (1e18).
var rateScale = sdkmath.NewIntWithDecimal(1, 18)

// ZeroEstimator is the dispatch target for unknown adapters. Mis-registered
// adapters fail soft on prediction; the real on-chain trade fails hard.
type ZeroEstimator struct{}

func (ZeroEstimator) Estimate(_ context.Context, _ sdkmath.Int, _, _ common.Address) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), nil
}
