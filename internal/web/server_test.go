package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/sve/internal/estimator"
	"github.com/meridianfi/sve/internal/rebalance"
	"github.com/meridianfi/sve/internal/registry"
	"github.com/meridianfi/sve/internal/timelock"
	"github.com/meridianfi/sve/internal/types"
)

func newTestServer(t *testing.T) (*WebServer, *timelock.Timelock) {
	t.Helper()
	reserve := common.BytesToAddress([]byte{0x01})
	env, err := registry.Build(registry.File{
		Reserve:  reserve,
		Params:   types.DefaultRebalanceParams,
		Adapters: []registry.FileAdapter{{Address: common.BytesToAddress([]byte{0xA1}), Category: "basic"}},
		Book: registry.BookData{
			Prices: map[common.Address]sdkmath.Int{reserve: sdkmath.NewIntWithDecimal(1, 18)},
		},
	})
	require.NoError(t, err)

	paths := estimator.NewPathEstimator(env.Adapters, env.Reserve)
	engine, err := rebalance.NewEngine(estimator.NewValuer(paths), types.DefaultRebalanceParams)
	require.NoError(t, err)

	locks := timelock.New(time.Hour, time.Hour)
	strategy := common.BytesToAddress([]byte{0xFF})
	return NewWebServer("0", strategy, engine, locks), locks
}

func TestParamsEndpoint(t *testing.T) {
	ws, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/params", nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var params types.RebalanceParams
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &params))
	assert.Equal(t, types.DefaultRebalanceParams.Threshold, params.Threshold)
}

func TestTimelockEndpoint(t *testing.T) {
	ws, locks := newTestServer(t)

	strategy := common.BytesToAddress([]byte{0xFF})
	_, err := locks.ProposeParams(strategy, types.DefaultRebalanceParams)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/timelock", nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var pending map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Contains(t, pending, "params")
	assert.NotContains(t, pending, "restructure")
}

func TestProposeParamsEndpoint(t *testing.T) {
	ws, locks := newTestServer(t)
	strategy := common.BytesToAddress([]byte{0xFF})

	newParams := types.DefaultRebalanceParams
	newParams.Threshold = 100
	body, err := json.Marshal(newParams)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/timelock/params", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	change, pending := locks.Pending(strategy, timelock.KindParams)
	require.True(t, pending)
	assert.Equal(t, int64(100), change.NewParams.Threshold)

	// a second proposal of the same kind conflicts until the first resolves
	req = httptest.NewRequest(http.MethodPost, "/api/timelock/params", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProposeParamsRejectsInvalid(t *testing.T) {
	ws, _ := newTestServer(t)

	bad := types.DefaultRebalanceParams
	bad.Threshold = 2000
	body, err := json.Marshal(bad)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/timelock/params", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/timelock/params", bytes.NewReader([]byte("not json")))
	rec = httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProposeRestructureEndpoint(t *testing.T) {
	ws, locks := newTestServer(t)
	strategy := common.BytesToAddress([]byte{0xFF})

	route := types.TradeData{Adapters: []common.Address{common.BytesToAddress([]byte{0xA1})}}
	items := []types.Item{
		{Token: common.BytesToAddress([]byte{0x01}), Category: types.CategoryReserve, Percentage: 0, TradeData: route},
		{Token: common.BytesToAddress([]byte{0x02}), Category: types.CategoryBasic, Percentage: 1000, TradeData: route},
	}
	body, err := json.Marshal(items)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/timelock/restructure", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	change, pending := locks.Pending(strategy, timelock.KindRestructure)
	require.True(t, pending)
	assert.Len(t, change.NewItems, 2)
}

func TestCancelTimelockEndpoint(t *testing.T) {
	ws, locks := newTestServer(t)
	strategy := common.BytesToAddress([]byte{0xFF})

	_, err := locks.ProposeParams(strategy, types.DefaultRebalanceParams)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/timelock/params", nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	_, pending := locks.Pending(strategy, timelock.KindParams)
	assert.False(t, pending)

	// cancelling again finds nothing
	req = httptest.NewRequest(http.MethodDelete, "/api/timelock/params", nil)
	rec = httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/timelock/bogus", nil)
	rec = httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSHeaders(t *testing.T) {
	ws, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/params", nil)
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
