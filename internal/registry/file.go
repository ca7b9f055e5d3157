/*

This file loads the registry file: the static environment table handed to
the core by the deployment/wiring layer. It declares the reserve asset, the
adapter and token tables, concentrated-liquidity fee tiers, hardcoded
fallback pools and the market-data book backing the offline readers.

*/

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianfi/sve/internal/protocols"
	"github.com/meridianfi/sve/internal/types"
)

var (
	ErrNoReserve       = errors.New("registry file declares no reserve asset")
	ErrUnknownCategory = errors.New("registry file references an unknown category")
)

// FileAdapter is one adapter table row.
type FileAdapter struct {
	Address  common.Address `json:"address"`
	Category string         `json:"category"`
}

// FileToken is one token table row.
type FileToken struct {
	Address   common.Address `json:"address"`
	Estimator string         `json:"estimator"`
	Category  string         `json:"category"`
}

// FileFeeTier is one concentrated-liquidity fee tier row.
type FileFeeTier struct {
	TokenA common.Address `json:"token_a"`
	TokenB common.Address `json:"token_b"`
	Fee    uint32         `json:"fee"`
}

// FileFallbackPool is one hardcoded pool row.
type FileFallbackPool struct {
	LPToken common.Address   `json:"lp_token"`
	Pool    common.Address   `json:"pool"`
	Coins   []common.Address `json:"coins"`
}

// File is the serialized registry handed over at environment setup.
type File struct {
	Reserve   common.Address        `json:"reserve"`
	Params    types.RebalanceParams `json:"params"`
	Adapters  []FileAdapter         `json:"adapters"`
	Tokens    []FileToken           `json:"tokens"`
	FeeTiers  []FileFeeTier         `json:"fee_tiers,omitempty"`
	Fallbacks []FileFallbackPool    `json:"fallback_pools,omitempty"`
	Book      BookData              `json:"book"`
}

// Environment is the fully constructed registry set the engine runs with.
type Environment struct {
	Reserve  common.Address
	Params   types.RebalanceParams
	Adapters *AdapterRegistry
	Tokens   *TokenRegistry
	Book     *StaticBook
}

// Load reads and builds an Environment from a registry file.
func Load(path string) (*Environment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}
	return Build(file)
}

// Build constructs an Environment from a parsed registry file.
func Build(file File) (*Environment, error) {
	if file.Reserve == (common.Address{}) {
		return nil, ErrNoReserve
	}
	if err := file.Params.Validate(); err != nil {
		return nil, fmt.Errorf("registry file params: %w", err)
	}

	book := NewStaticBook(file.Book)

	tiers := protocols.NewStaticFeeTiers()
	for _, t := range file.FeeTiers {
		tiers.Register(t.TokenA, t.TokenB, t.Fee)
	}

	fallbacks := make([]protocols.FallbackPool, 0, len(file.Fallbacks))
	for _, fb := range file.Fallbacks {
		fallbacks = append(fallbacks, protocols.FallbackPool{
			LPToken: fb.LPToken,
			Pool:    fb.Pool,
			Coins:   fb.Coins,
		})
	}

	adapters := NewAdapterRegistry()
	for _, row := range file.Adapters {
		category, err := types.ParseEstimatorCategory(row.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: adapter %s: %v", ErrUnknownCategory, row.Address.Hex(), err)
		}
		est, err := buildEstimator(category, book, tiers, fallbacks)
		if err != nil {
			return nil, fmt.Errorf("adapter %s: %w", row.Address.Hex(), err)
		}
		if err := adapters.Register(row.Address, est); err != nil {
			return nil, err
		}
	}

	tokens := NewTokenRegistry()
	for _, row := range file.Tokens {
		estCategory, err := types.ParseEstimatorCategory(row.Estimator)
		if err != nil {
			return nil, fmt.Errorf("%w: token %s: %v", ErrUnknownCategory, row.Address.Hex(), err)
		}
		itemCategory, err := parseItemCategory(row.Category)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", row.Address.Hex(), err)
		}
		if err := tokens.Register(row.Address, TokenRecord{Estimator: estCategory, Category: itemCategory}); err != nil {
			return nil, err
		}
	}

	return &Environment{
		Reserve:  file.Reserve,
		Params:   file.Params,
		Adapters: adapters,
		Tokens:   tokens,
		Book:     book,
	}, nil
}

// buildEstimator selects one catalog implementation per category, all wired
// to the same book readers.
func buildEstimator(
	category types.EstimatorCategory,
	book *StaticBook,
	tiers *protocols.StaticFeeTiers,
	fallbacks []protocols.FallbackPool,
) (protocols.Estimator, error) {
	switch category {
	case types.EstimatorBasic, types.EstimatorConstProduct,
		types.EstimatorConstProductAlt, types.EstimatorOrderRouter:
		return protocols.NewConstProductEstimator(book), nil
	case types.EstimatorFlatWrap, types.EstimatorFlatDebt:
		return protocols.NewFlatEstimator(), nil
	case types.EstimatorLendingRate:
		return protocols.NewLendingRateEstimator(book), nil
	case types.EstimatorStableSwap:
		return protocols.NewStableSwapEstimator(book), nil
	case types.EstimatorStableSwapLP:
		return protocols.NewStableSwapLPEstimator(book, fallbacks), nil
	case types.EstimatorSynth:
		return protocols.NewSynthEstimator(book), nil
	case types.EstimatorVaultShare:
		return protocols.NewVaultShareEstimator(book), nil
	case types.EstimatorConcentrated:
		return protocols.NewConcentratedEstimator(tiers, book), nil
	default:
		return nil, fmt.Errorf("no estimator implementation for category %d", category)
	}
}

func parseItemCategory(name string) (types.ItemCategory, error) {
	switch name {
	case "BASIC":
		return types.CategoryBasic, nil
	case "SYNTH":
		return types.CategorySynth, nil
	case "DEBT":
		return types.CategoryDebt, nil
	case "RESERVE":
		return types.CategoryReserve, nil
	default:
		return 0, fmt.Errorf("unknown item category %q", name)
	}
}
