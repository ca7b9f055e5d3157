/*

This file contains the adapter and token registries. Both are static tables
built once at environment setup and read-only afterwards; mutations to them
are timelock-gated and never concurrent with plan construction.

*/

package registry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianfi/sve/internal/logger"
	"github.com/meridianfi/sve/internal/protocols"
	"github.com/meridianfi/sve/internal/types"
)

var (
	ErrAdapterExists = errors.New("adapter already registered")
	ErrTokenExists   = errors.New("token already registered")
)

// AdapterRegistry maps adapter identities to their protocol estimators.
// Dispatch is by adapter identity, not token identity; an address matching
// no known adapter dispatches to the zero estimator so mis-registered
// adapters fail soft on prediction.
type AdapterRegistry struct {
	estimators map[common.Address]protocols.Estimator
	zero       protocols.Estimator
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		estimators: make(map[common.Address]protocols.Estimator),
		zero:       protocols.ZeroEstimator{},
	}
}

// Register binds an adapter to its estimator. Duplicate registration is a
// configuration error.
func (r *AdapterRegistry) Register(adapter common.Address, est protocols.Estimator) error {
	if _, ok := r.estimators[adapter]; ok {
		return fmt.Errorf("%w: %s", ErrAdapterExists, adapter.Hex())
	}
	r.estimators[adapter] = est
	return nil
}

// EstimatorFor returns the estimator dispatched for an adapter, falling
// back to the zero estimator for unknown addresses.
func (r *AdapterRegistry) EstimatorFor(adapter common.Address) protocols.Estimator {
	if est, ok := r.estimators[adapter]; ok {
		return est
	}
	registryLogger := logger.GetForComponent("adapter_registry")
	registryLogger.Debug().
		Str("adapter", adapter.Hex()).
		Msg("Unknown adapter, dispatching zero estimator")
	return r.zero
}

// Known reports whether an adapter is registered.
func (r *AdapterRegistry) Known(adapter common.Address) bool {
	_, ok := r.estimators[adapter]
	return ok
}

// Len returns the number of registered adapters.
func (r *AdapterRegistry) Len() int {
	return len(r.estimators)
}

// TokenRecord pairs a token's valuation category with its allocation role.
type TokenRecord struct {
	Estimator types.EstimatorCategory
	Category  types.ItemCategory
}

// TokenRegistry maps token identities to their records. Populated by the
// token-registration collaborator at setup, consulted read-only afterwards.
type TokenRegistry struct {
	records map[common.Address]TokenRecord
}

func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{records: make(map[common.Address]TokenRecord)}
}

func (r *TokenRegistry) Register(token common.Address, record TokenRecord) error {
	if _, ok := r.records[token]; ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, token.Hex())
	}
	r.records[token] = record
	return nil
}

// Lookup returns a token's record. Unregistered tokens report ok=false and
// an unknown estimator category.
func (r *TokenRegistry) Lookup(token common.Address) (TokenRecord, bool) {
	rec, ok := r.records[token]
	return rec, ok
}

// Len returns the number of registered tokens.
func (r *TokenRegistry) Len() int {
	return len(r.records)
}
