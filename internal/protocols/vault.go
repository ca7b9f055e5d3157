package protocols

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// VaultReader interprets a token as a yield vault share.
type VaultReader interface {
	// Underlying returns the deposit token of a vault. ok=false when the
	// address is not a vault at all.
	Underlying(ctx context.Context, vault common.Address) (token common.Address, ok bool, err error)
	// PricePerShare returns the vault's current share price in underlying
	// units, scaled by 10^Decimals.
	PricePerShare(ctx context.Context, vault common.Address) (sdkmath.Int, error)
	// Decimals returns the vault share token's decimals.
	Decimals(ctx context.Context, vault common.Address) (uint8, error)
}

// VaultShareEstimator converts between a vault share and its underlying
// token using pricePerShare. Exactly one orientation may hold: either
// tokenOut is a vault over tokenIn (deposit) or tokenIn is a vault over
// tokenOut (withdraw). An unknown pairing degrades to zero so the rebalance
// loop keeps making progress on other items.
type VaultShareEstimator struct {
	reader VaultReader
}

func NewVaultShareEstimator(reader VaultReader) *VaultShareEstimator {
	return &VaultShareEstimator{reader: reader}
}

func (e *VaultShareEstimator) Estimate(ctx context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	outUnderlying, outIsVault, err := e.reader.Underlying(ctx, tokenOut)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("vault lookup %s: %w", tokenOut.Hex(), err)
	}
	inUnderlying, inIsVault, err := e.reader.Underlying(ctx, tokenIn)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("vault lookup %s: %w", tokenIn.Hex(), err)
	}

	depositMatch := outIsVault && outUnderlying == tokenIn
	withdrawMatch := inIsVault && inUnderlying == tokenOut
	if depositMatch == withdrawMatch {
		// neither orientation holds, or both do
		return sdkmath.ZeroInt(), nil
	}

	if depositMatch {
		price, scale, err := e.sharePrice(ctx, tokenOut)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if price.IsZero() {
			return sdkmath.ZeroInt(), nil
		}
		return amount.Mul(scale).Quo(price), nil
	}

	price, scale, err := e.sharePrice(ctx, tokenIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount.Mul(price).Quo(scale), nil
}

func (e *VaultShareEstimator) sharePrice(ctx context.Context, vault common.Address) (price, scale sdkmath.Int, err error) {
	price, err = e.reader.PricePerShare(ctx, vault)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("price per share %s: %w", vault.Hex(), err)
	}
	decimals, err := e.reader.Decimals(ctx, vault)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("decimals %s: %w", vault.Hex(), err)
	}
	return price, sdkmath.NewIntWithDecimal(1, int(decimals)), nil
}
