package server_test

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"synthengine/internal/engine"
	"synthengine/internal/observability"
	"synthengine/internal/oracle"
	"synthengine/internal/query"
	"synthengine/internal/server"
	"synthengine/internal/token"
)

var testMetrics = observability.NewMetrics()

type apiFixture struct {
	router     http.Handler
	collateral *token.MemoryCollateralAssets
	health     *observability.HealthChecker
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	registry, err := oracle.NewRegistry(
		[]string{"WETH"},
		[]oracle.PriceFeed{oracle.NewUSDFeed(2000)},
	)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	custody := uuid.New()
	collateral := token.NewMemoryCollateralAssets(custody)
	eng, err := engine.NewEngine(engine.Config{
		Registry:   registry,
		Liability:  token.NewMemoryLiabilityToken(custody),
		Collateral: collateral,
		CustodyID:  custody,
		Logger:     zerolog.Nop(),
		Metrics:    testMetrics,
	})
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	// Historical endpoints are not exercised here, so the query service
	// gets no database.
	health := observability.NewHealthChecker()
	srv := server.NewHTTPServer(eng, query.NewService(nil, testMetrics), health, zerolog.Nop())

	return &apiFixture{
		router:     srv.Router(),
		collateral: collateral,
		health:     health,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	decoded := make(map[string]interface{})
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: response not JSON: %v", method, path, err)
		}
	}
	return rec, decoded
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oracle.Precision)
}

func TestDepositEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	user := uuid.New()
	f.collateral.Fund("WETH", user, units(10))

	body := fmt.Sprintf(`{"user_id":%q,"asset":"WETH","amount":%q}`, user.String(), units(10).String())
	rec, resp := f.do(t, http.MethodPost, "/v1/deposit", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: status %d, body %s", rec.Code, rec.Body)
	}
	opID, ok := resp["operation_id"].(string)
	if !ok {
		t.Fatalf("missing operation_id in %v", resp)
	}
	if _, err := uuid.Parse(opID); err != nil {
		t.Fatalf("operation_id %q not a uuid: %v", opID, err)
	}

	rec, resp = f.do(t, http.MethodGet, "/v1/accounts/"+user.String()+"/collateral/WETH", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("collateral balance: status %d", rec.Code)
	}
	if got := resp["balance"]; got != units(10).String() {
		t.Fatalf("balance: got %v, want %s", got, units(10))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newAPIFixture(t)
	user := uuid.New()

	// Malformed amount never reaches the engine.
	rec, _ := f.do(t, http.MethodPost, "/v1/deposit",
		fmt.Sprintf(`{"user_id":%q,"asset":"WETH","amount":"ten"}`, user.String()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed amount: status %d", rec.Code)
	}

	// Unknown asset is a client error.
	rec, _ = f.do(t, http.MethodPost, "/v1/deposit",
		fmt.Sprintf(`{"user_id":%q,"asset":"DOGE","amount":"1"}`, user.String()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown asset: status %d", rec.Code)
	}

	// Minting with no collateral conflicts with the solvency invariant and
	// reports the offending health factor.
	rec, resp := f.do(t, http.MethodPost, "/v1/mint",
		fmt.Sprintf(`{"user_id":%q,"amount":%q}`, user.String(), units(1).String()))
	if rec.Code != http.StatusConflict {
		t.Fatalf("insolvent mint: status %d", rec.Code)
	}
	if got := resp["health_factor"]; got != "0" {
		t.Fatalf("health_factor: got %v, want 0", got)
	}
}

func TestHealthFactorSimulation(t *testing.T) {
	f := newAPIFixture(t)

	path := fmt.Sprintf("/v1/health-factor?liability=%s&collateral_value=%s",
		units(1000), units(4000))
	rec, resp := f.do(t, http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("simulate: status %d", rec.Code)
	}
	// Adjusted $2000 against 1000 liability: health factor 2.0.
	if got := resp["health_factor"]; got != units(2).String() {
		t.Fatalf("health_factor: got %v, want %s", got, units(2))
	}
}

func TestConstantsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/v1/constants", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("constants: status %d", rec.Code)
	}
	if got := resp["liquidation_threshold"]; got != "50" {
		t.Fatalf("liquidation_threshold: got %v", got)
	}
	if got := resp["min_health_factor"]; got != oracle.Precision.String() {
		t.Fatalf("min_health_factor: got %v", got)
	}
}

func TestReadinessReflectsState(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before ready: status %d", rec.Code)
	}

	f.health.SetReady(true)
	rec, _ = f.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("after ready: status %d", rec.Code)
	}
}
