/*

This file contains the item types that make up a strategy: the allocation
categories, the per-item trade routing data, and the structural validation
rules every item set must satisfy before any plan is built.

*/

package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Divisor is the implicit denominator for every percentage, threshold,
// slippage and fee ratio in the system. 500 = 50%.
const Divisor int64 = 1000

// ItemCategory describes how an item's allocation is targeted. It is
// distinct from EstimatorCategory, which describes how a token is valued.
type ItemCategory uint8

const (
	CategoryBasic ItemCategory = iota
	CategorySynth
	CategoryDebt
	CategoryReserve
)

func (c ItemCategory) String() string {
	switch c {
	case CategoryBasic:
		return "BASIC"
	case CategorySynth:
		return "SYNTH"
	case CategoryDebt:
		return "DEBT"
	case CategoryReserve:
		return "RESERVE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
	}
}

// EstimatorCategory selects which protocol estimator values a token,
// regardless of which strategy holds it. The catalog is closed: adding a
// protocol means adding a category here and an estimator implementation.
type EstimatorCategory uint8

const (
	EstimatorUnknown EstimatorCategory = iota
	EstimatorBasic                     // plain ERC20, valued through its trade path
	EstimatorFlatWrap                  // 1:1 wrap/unwrap (tokenized lending collateral)
	EstimatorFlatDebt                  // 1:1 debt mirror of a flat wrap
	EstimatorLendingRate               // interest-bearing wrapper with an external exchange rate
	EstimatorStableSwap                // stable-swap AMM coin
	EstimatorStableSwapLP              // stable-swap liquidity token
	EstimatorSynth                     // synthetic asset priced by currency-key exchange rates
	EstimatorVaultShare                // yield vault share priced by pricePerShare
	EstimatorConstProduct              // constant-product AMM quoting
	EstimatorConstProductAlt           // second constant-product venue (separate router)
	EstimatorOrderRouter               // order-router style venue quoting
	EstimatorConcentrated              // concentrated-liquidity venue with fee tiers
)

var estimatorCategoryNames = map[string]EstimatorCategory{
	"basic":             EstimatorBasic,
	"flat_wrap":         EstimatorFlatWrap,
	"flat_debt":         EstimatorFlatDebt,
	"lending_rate":      EstimatorLendingRate,
	"stable_swap":       EstimatorStableSwap,
	"stable_swap_lp":    EstimatorStableSwapLP,
	"synth":             EstimatorSynth,
	"vault_share":       EstimatorVaultShare,
	"const_product":     EstimatorConstProduct,
	"const_product_alt": EstimatorConstProductAlt,
	"order_router":      EstimatorOrderRouter,
	"concentrated":      EstimatorConcentrated,
}

// ParseEstimatorCategory resolves the registry-file spelling of a category.
func ParseEstimatorCategory(name string) (EstimatorCategory, error) {
	if c, ok := estimatorCategoryNames[name]; ok {
		return c, nil
	}
	return EstimatorUnknown, fmt.Errorf("unknown estimator category %q", name)
}

// CacheKind tags the decoded shape of an item's cache blob.
type CacheKind uint8

const (
	CacheNone CacheKind = iota
	CacheMultiplier
	CacheCollateralLoop
)

// CollateralLoop describes where swapped borrow proceeds of a debt item are
// routed. Percentage is a fraction over Divisor; the loop list of one debt
// item must sum to Divisor.
type CollateralLoop struct {
	Collateral common.Address `json:"collateral"`
	Percentage int64          `json:"percentage"`
}

// TradeCache is the decoded per-item configuration blob. Exactly one shape
// applies per kind: a purchase multiplier for yield/rebase-bearing items, or
// a collateral routing list for debt items.
type TradeCache struct {
	Kind       CacheKind        `json:"kind"`
	Multiplier int64            `json:"multiplier,omitempty"` // over Divisor, e.g. 1005 = 1.005x
	Loops      []CollateralLoop `json:"loops,omitempty"`
}

// TradeData declares the multi-hop route between the reserve asset and an
// item's token: adapters[0..n] with path[0..n-1] intermediate tokens.
type TradeData struct {
	Adapters []common.Address `json:"adapters"`
	Path     []common.Address `json:"path"`
	Cache    *TradeCache      `json:"cache,omitempty"`
}

// Item is one asset or liability position inside a strategy. Percentage is
// signed per-mille of total strategy value; negative only for debt.
type Item struct {
	Token      common.Address `json:"token"`
	Category   ItemCategory   `json:"category"`
	Percentage int64          `json:"percentage"`
	TradeData  TradeData      `json:"trade_data"`
}

// Structural validation errors. These abort plan construction outright; they
// indicate a malformed strategy configuration, not a market condition.
var (
	ErrNoItems              = errors.New("strategy has no items")
	ErrPercentageClosure    = errors.New("item percentages do not sum to the divisor")
	ErrItemOrder            = errors.New("items are not in ascending address order")
	ErrDuplicateItem        = errors.New("duplicate item address")
	ErrReserveCount         = errors.New("strategy must hold exactly one reserve item")
	ErrNegativePercentage   = errors.New("only debt items may carry a negative percentage")
	ErrDebtPercentage       = errors.New("debt items must carry a negative percentage")
	ErrTradePathShape       = errors.New("trade data must satisfy len(adapters) == len(path)+1")
	ErrCacheShape           = errors.New("trade cache shape does not match its kind")
	ErrCollateralLoopShares = errors.New("collateral loop percentages must sum to the divisor")
)

// ValidateItems checks every structural invariant of an item set: canonical
// ascending address order, no duplicates, signed percentage closure over
// Divisor, exactly one reserve item, category/sign agreement and per-item
// trade data shape.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return ErrNoItems
	}

	var sum int64
	reserves := 0
	for i, item := range items {
		if i > 0 {
			cmp := bytes.Compare(items[i-1].Token.Bytes(), item.Token.Bytes())
			if cmp == 0 {
				return fmt.Errorf("%w: %s", ErrDuplicateItem, item.Token.Hex())
			}
			if cmp > 0 {
				return fmt.Errorf("%w: %s before %s", ErrItemOrder,
					items[i-1].Token.Hex(), item.Token.Hex())
			}
		}

		switch item.Category {
		case CategoryDebt:
			if item.Percentage >= 0 {
				return fmt.Errorf("%w: %s", ErrDebtPercentage, item.Token.Hex())
			}
		case CategoryReserve:
			reserves++
			fallthrough
		default:
			if item.Percentage < 0 {
				return fmt.Errorf("%w: %s", ErrNegativePercentage, item.Token.Hex())
			}
		}

		if err := validateTradeData(item); err != nil {
			return err
		}

		sum += item.Percentage
	}

	if reserves != 1 {
		return fmt.Errorf("%w: found %d", ErrReserveCount, reserves)
	}
	if sum != Divisor {
		return fmt.Errorf("%w: sum is %d", ErrPercentageClosure, sum)
	}
	return nil
}

func validateTradeData(item Item) error {
	td := item.TradeData
	if len(td.Adapters) != len(td.Path)+1 {
		return fmt.Errorf("%w: item %s has %d adapters and %d path tokens",
			ErrTradePathShape, item.Token.Hex(), len(td.Adapters), len(td.Path))
	}
	if td.Cache == nil {
		return nil
	}
	switch td.Cache.Kind {
	case CacheNone:
		if td.Cache.Multiplier != 0 || len(td.Cache.Loops) != 0 {
			return fmt.Errorf("%w: item %s", ErrCacheShape, item.Token.Hex())
		}
	case CacheMultiplier:
		if td.Cache.Multiplier <= 0 || len(td.Cache.Loops) != 0 {
			return fmt.Errorf("%w: item %s", ErrCacheShape, item.Token.Hex())
		}
	case CacheCollateralLoop:
		if len(td.Cache.Loops) == 0 || td.Cache.Multiplier != 0 {
			return fmt.Errorf("%w: item %s", ErrCacheShape, item.Token.Hex())
		}
		var loopSum int64
		for _, loop := range td.Cache.Loops {
			if loop.Percentage <= 0 {
				return fmt.Errorf("%w: item %s", ErrCollateralLoopShares, item.Token.Hex())
			}
			loopSum += loop.Percentage
		}
		if loopSum != Divisor {
			return fmt.Errorf("%w: item %s sums to %d", ErrCollateralLoopShares,
				item.Token.Hex(), loopSum)
		}
	default:
		return fmt.Errorf("%w: item %s has unknown cache kind %d",
			ErrCacheShape, item.Token.Hex(), td.Cache.Kind)
	}
	return nil
}

// FindReserve returns the reserve item of a validated item set.
func FindReserve(items []Item) (Item, bool) {
	for _, item := range items {
		if item.Category == CategoryReserve {
			return item, true
		}
	}
	return Item{}, false
}
