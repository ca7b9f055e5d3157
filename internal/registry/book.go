/*

This file contains the static book: a file-backed implementation of every
protocol reader seam, built from declarative market data captured at
environment setup. It lets the engine run fully offline for pre-flight
planning; live deployments swap in RPC-backed readers behind the same
interfaces.

Swap quoting in the book is price-ratio based: each token carries a spot
price denominated in the reserve asset at 1e18 scale, and each venue
retains a per-mille fraction after fees.

*/

package registry

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianfi/sve/internal/types"
)

// BookPool describes one stable-swap pool in the book.
type BookPool struct {
	Pool        common.Address   `json:"pool"`
	LPToken     common.Address   `json:"lp_token"`
	Coins       []common.Address `json:"coins"`
	Underlying  []bool           `json:"underlying,omitempty"`
	Zap         common.Address   `json:"zap,omitempty"`
	SignedIndex bool             `json:"signed_index,omitempty"`
}

// BookVault describes one yield vault in the book.
type BookVault struct {
	Vault         common.Address `json:"vault"`
	Token         common.Address `json:"token"`
	PricePerShare sdkmath.Int    `json:"price_per_share"`
	Decimals      uint8          `json:"decimals"`
}

// BookData is the serialized form of a static book.
type BookData struct {
	Prices    map[common.Address]sdkmath.Int `json:"prices"`
	Wrappers  map[common.Address]sdkmath.Int `json:"wrappers"` // 1e18 exchange rates
	Pools     []BookPool                     `json:"pools"`
	Vaults    []BookVault                    `json:"vaults"`
	SynthKeys map[common.Address]string      `json:"synth_keys"`
	// VenueFee is the per-mille fraction a venue swap retains after fees,
	// e.g. 997 for a 0.3% fee. Zero means fee-free quoting.
	VenueFee int64 `json:"venue_fee,omitempty"`
}

// StaticBook implements the protocol reader seams from BookData.
type StaticBook struct {
	data     BookData
	poolByID map[common.Address]*BookPool
	poolByLP map[common.Address]*BookPool
	vaults   map[common.Address]*BookVault
}

func NewStaticBook(data BookData) *StaticBook {
	b := &StaticBook{
		data:     data,
		poolByID: make(map[common.Address]*BookPool),
		poolByLP: make(map[common.Address]*BookPool),
		vaults:   make(map[common.Address]*BookVault),
	}
	for i := range data.Pools {
		p := &data.Pools[i]
		b.poolByID[p.Pool] = p
		b.poolByLP[p.LPToken] = p
	}
	for i := range data.Vaults {
		v := &data.Vaults[i]
		b.vaults[v.Vault] = v
	}
	return b
}

func (b *StaticBook) price(token common.Address) (sdkmath.Int, bool) {
	p, ok := b.data.Prices[token]
	if !ok || p.IsNil() || !p.IsPositive() {
		return sdkmath.ZeroInt(), false
	}
	return p, true
}

// convert prices amount of tokenIn into tokenOut via spot price ratio,
// applying the venue fee.
func (b *StaticBook) convert(amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	priceIn, ok := b.price(tokenIn)
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	priceOut, ok := b.price(tokenOut)
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	out := amount.Mul(priceIn).Quo(priceOut)
	if b.data.VenueFee > 0 {
		out = out.MulRaw(b.data.VenueFee).QuoRaw(types.Divisor)
	}
	return out, nil
}

// --- RateSource ---

func (b *StaticBook) IsWrapper(_ context.Context, token common.Address) (bool, error) {
	_, ok := b.data.Wrappers[token]
	return ok, nil
}

func (b *StaticBook) ExchangeRate(_ context.Context, wrapper common.Address) (sdkmath.Int, error) {
	rate, ok := b.data.Wrappers[wrapper]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("no exchange rate recorded for %s", wrapper.Hex())
	}
	return rate, nil
}

// --- StableSwapReader ---

func (b *StaticBook) PoolFor(_ context.Context, tokenIn, tokenOut common.Address) (common.Address, bool, error) {
	for _, p := range b.data.Pools {
		in, out := false, false
		for _, coin := range p.Coins {
			if coin == tokenIn {
				in = true
			}
			if coin == tokenOut {
				out = true
			}
		}
		if in && out {
			return p.Pool, true, nil
		}
	}
	return common.Address{}, false, nil
}

func (b *StaticBook) CoinIndex(_ context.Context, pool, token common.Address) (int, bool, error) {
	p, ok := b.poolByID[pool]
	if !ok {
		return 0, false, fmt.Errorf("unknown pool %s", pool.Hex())
	}
	for i, coin := range p.Coins {
		if coin == token {
			underlying := i < len(p.Underlying) && p.Underlying[i]
			return i, underlying, nil
		}
	}
	return 0, false, fmt.Errorf("token %s not in pool %s", token.Hex(), pool.Hex())
}

func (b *StaticBook) QuoteSwap(_ context.Context, pool common.Address, i, j int, _ bool, dx sdkmath.Int) (sdkmath.Int, error) {
	p, ok := b.poolByID[pool]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("unknown pool %s", pool.Hex())
	}
	if i < 0 || i >= len(p.Coins) || j < 0 || j >= len(p.Coins) {
		return sdkmath.ZeroInt(), fmt.Errorf("coin index out of range for pool %s", pool.Hex())
	}
	return b.convert(dx, p.Coins[i], p.Coins[j])
}

// --- StableSwapLPReader ---

func (b *StaticBook) PoolForLP(_ context.Context, lpToken common.Address) (common.Address, bool, error) {
	p, ok := b.poolByLP[lpToken]
	if !ok {
		return common.Address{}, false, nil
	}
	return p.Pool, true, nil
}

func (b *StaticBook) PoolCoins(_ context.Context, pool common.Address) ([]common.Address, error) {
	p, ok := b.poolByID[pool]
	if !ok {
		return nil, fmt.Errorf("unknown pool %s", pool.Hex())
	}
	return p.Coins, nil
}

func (b *StaticBook) QuoteDeposit(_ context.Context, pool common.Address, coinIndex int, amount sdkmath.Int) (sdkmath.Int, error) {
	p, ok := b.poolByID[pool]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("unknown pool %s", pool.Hex())
	}
	if coinIndex < 0 || coinIndex >= len(p.Coins) {
		return sdkmath.ZeroInt(), fmt.Errorf("coin index out of range for pool %s", pool.Hex())
	}
	return b.convert(amount, p.Coins[coinIndex], p.LPToken)
}

func (b *StaticBook) ZapFor(_ context.Context, lpToken common.Address) (common.Address, bool, bool, error) {
	p, ok := b.poolByLP[lpToken]
	if !ok || p.Zap == (common.Address{}) {
		return common.Address{}, false, false, nil
	}
	return p.Zap, p.SignedIndex, true, nil
}

func (b *StaticBook) QuoteWithdraw(_ context.Context, zap common.Address, lpAmount sdkmath.Int, coinIndex int, _ bool) (sdkmath.Int, error) {
	for _, p := range b.data.Pools {
		if p.Zap != zap {
			continue
		}
		if coinIndex < 0 || coinIndex >= len(p.Coins) {
			return sdkmath.ZeroInt(), fmt.Errorf("coin index out of range for zap %s", zap.Hex())
		}
		return b.convert(lpAmount, p.LPToken, p.Coins[coinIndex])
	}
	return sdkmath.ZeroInt(), fmt.Errorf("unknown zap %s", zap.Hex())
}

// --- SynthReader ---

func (b *StaticBook) CurrencyKey(_ context.Context, token common.Address) ([32]byte, bool, error) {
	name, ok := b.data.SynthKeys[token]
	if !ok {
		return [32]byte{}, false, nil
	}
	var key [32]byte
	copy(key[:], name)
	return key, true, nil
}

func (b *StaticBook) EffectiveValue(_ context.Context, amount sdkmath.Int, srcKey, dstKey [32]byte) (sdkmath.Int, error) {
	src, ok := b.tokenForKey(srcKey)
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	dst, ok := b.tokenForKey(dstKey)
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	return b.convert(amount, src, dst)
}

func (b *StaticBook) tokenForKey(key [32]byte) (common.Address, bool) {
	for token, name := range b.data.SynthKeys {
		var k [32]byte
		copy(k[:], name)
		if k == key {
			return token, true
		}
	}
	return common.Address{}, false
}

// --- VaultReader ---

func (b *StaticBook) Underlying(_ context.Context, vault common.Address) (common.Address, bool, error) {
	v, ok := b.vaults[vault]
	if !ok {
		return common.Address{}, false, nil
	}
	return v.Token, true, nil
}

func (b *StaticBook) PricePerShare(_ context.Context, vault common.Address) (sdkmath.Int, error) {
	v, ok := b.vaults[vault]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("unknown vault %s", vault.Hex())
	}
	return v.PricePerShare, nil
}

func (b *StaticBook) Decimals(_ context.Context, vault common.Address) (uint8, error) {
	v, ok := b.vaults[vault]
	if !ok {
		return 0, fmt.Errorf("unknown vault %s", vault.Hex())
	}
	return v.Decimals, nil
}

// --- PairQuoter / ConcentratedQuoter ---

func (b *StaticBook) Quote(_ context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address) (sdkmath.Int, error) {
	return b.convert(amount, tokenIn, tokenOut)
}

// ppmScale converts concentrated-liquidity fee tiers (parts per million).
const ppmScale = 1_000_000

func (b *StaticBook) QuoteExactInput(_ context.Context, amount sdkmath.Int, tokenIn, tokenOut common.Address, feeTier uint32) (sdkmath.Int, error) {
	priceIn, ok := b.price(tokenIn)
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	priceOut, ok := b.price(tokenOut)
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	out := amount.Mul(priceIn).Quo(priceOut)
	return out.MulRaw(ppmScale - int64(feeTier)).QuoRaw(ppmScale), nil
}
