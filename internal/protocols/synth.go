package protocols

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// SynthReader resolves synthetic assets to their canonical currency keys
// and quotes exchanges between two keys at the protocol's spot rates.
type SynthReader interface {
	// CurrencyKey returns a synth's canonical key. ok=false when the token
	// is not a registered synth.
	CurrencyKey(ctx context.Context, token common.Address) (key [32]byte, ok bool, err error)
	// EffectiveValue quotes amount of srcKey in dstKey at current rates.
	// Secondary outputs of the underlying call (fee, ratio) are discarded
	// by the implementation; only the predicted amount is returned.
	EffectiveValue(ctx context.Context, amount sdkmath.Int, srcKey, dstKey [32]byte) (sdkmath.Int, error)
}

// SynthEstimator prices a swap between two synthetic assets via their
// currency keys and the protocol's spot exchange rates.
type SynthEstimator struct {
	reader SynthReader
}

func NewSynthEstimator(reader SynthReader) *SynthEstimator {
	return &SynthEstimator{reader: reader}
}

func (e *SynthEstimator) Estimate(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	srcKey, ok, err := e.reader.CurrencyKey(ctx, tokenIn)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("currency key for %s: %w", tokenIn.Hex(), err)
	}
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	dstKey, ok, err := e.reader.CurrencyKey(ctx, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("currency key for %s: %w", tokenOut.Hex(), err)
	}
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	return e.reader.EffectiveValue(ctx, amount, srcKey, dstKey)
}
