package registry

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/sve/internal/protocols"
	"github.com/meridianfi/sve/internal/types"
)

var (
	reserveToken = common.BytesToAddress([]byte{0x01})
	assetToken   = common.BytesToAddress([]byte{0x02})
	ammAdapter   = common.BytesToAddress([]byte{0xA1})
)

func TestAdapterRegistryDispatch(t *testing.T) {
	r := NewAdapterRegistry()
	require.NoError(t, r.Register(ammAdapter, protocols.NewFlatEstimator()))

	assert.ErrorIs(t, r.Register(ammAdapter, protocols.NewFlatEstimator()), ErrAdapterExists)
	assert.True(t, r.Known(ammAdapter))
	assert.Equal(t, 1, r.Len())

	// unknown adapters dispatch the zero estimator rather than failing
	unknown := common.BytesToAddress([]byte{0xEE})
	out, err := r.EstimatorFor(unknown).Estimate(context.Background(), sdkmath.NewInt(100), reserveToken, assetToken)
	require.NoError(t, err)
	assert.True(t, out.IsZero())

	out, err = r.EstimatorFor(ammAdapter).Estimate(context.Background(), sdkmath.NewInt(100), reserveToken, assetToken)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), out)
}

func TestTokenRegistry(t *testing.T) {
	r := NewTokenRegistry()
	record := TokenRecord{Estimator: types.EstimatorBasic, Category: types.CategoryBasic}
	require.NoError(t, r.Register(assetToken, record))
	assert.ErrorIs(t, r.Register(assetToken, record), ErrTokenExists)

	got, ok := r.Lookup(assetToken)
	require.True(t, ok)
	assert.Equal(t, record, got)

	_, ok = r.Lookup(reserveToken)
	assert.False(t, ok)
}

func testFile() File {
	return File{
		Reserve: reserveToken,
		Params:  types.DefaultRebalanceParams,
		Adapters: []FileAdapter{
			{Address: ammAdapter, Category: "const_product"},
		},
		Tokens: []FileToken{
			{Address: assetToken, Estimator: "const_product", Category: "BASIC"},
			{Address: reserveToken, Estimator: "basic", Category: "RESERVE"},
		},
		Book: BookData{
			Prices: map[common.Address]sdkmath.Int{
				reserveToken: sdkmath.NewIntWithDecimal(1, 18),
				assetToken:   sdkmath.NewIntWithDecimal(2, 18),
			},
		},
	}
}

func TestBuildEnvironment(t *testing.T) {
	env, err := Build(testFile())
	require.NoError(t, err)

	assert.Equal(t, reserveToken, env.Reserve)
	assert.Equal(t, 1, env.Adapters.Len())
	assert.Equal(t, 2, env.Tokens.Len())

	// asset is worth 2x reserve in the book
	out, err := env.Adapters.EstimatorFor(ammAdapter).Estimate(
		context.Background(), sdkmath.NewInt(100), assetToken, reserveToken)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(200), out)
}

func TestBuildRejectsBadFiles(t *testing.T) {
	file := testFile()
	file.Reserve = common.Address{}
	_, err := Build(file)
	assert.ErrorIs(t, err, ErrNoReserve)

	file = testFile()
	file.Adapters[0].Category = "bonding_curve"
	_, err = Build(file)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	file = testFile()
	file.Params.Fee = 0
	_, err = Build(file)
	assert.Error(t, err)
}

func TestStaticBookVenueFee(t *testing.T) {
	file := testFile()
	file.Book.VenueFee = 997
	env, err := Build(file)
	require.NoError(t, err)

	out, err := env.Book.Quote(context.Background(), sdkmath.NewInt(1000), assetToken, reserveToken)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1994), out)
}

func TestStaticBookUnknownTokenQuotesZero(t *testing.T) {
	env, err := Build(testFile())
	require.NoError(t, err)

	out, err := env.Book.Quote(context.Background(), sdkmath.NewInt(1000),
		common.BytesToAddress([]byte{0x77}), reserveToken)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}
