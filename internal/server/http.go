// Package server exposes the engine over HTTP/JSON and gRPC. The HTTP API
// carries all amounts as decimal strings: 18-decimal base units overflow
// JSON numbers.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"synthengine/internal/engine"
	"synthengine/internal/observability"
	"synthengine/internal/oracle"
	"synthengine/internal/query"
)

// HTTPServer serves the mutation and query API.
type HTTPServer struct {
	engine  *engine.Engine
	queries *query.Service
	health  *observability.HealthChecker
	log     zerolog.Logger
}

func NewHTTPServer(eng *engine.Engine, queries *query.Service, health *observability.HealthChecker, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		engine:  eng,
		queries: queries,
		health:  health,
		log:     logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the chi route tree.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/deposit", s.handleDeposit)
		r.Post("/redeem", s.handleRedeem)
		r.Post("/mint", s.handleMint)
		r.Post("/burn", s.handleBurn)
		r.Post("/deposit-and-mint", s.handleDepositAndMint)
		r.Post("/redeem-for-burn", s.handleRedeemForBurn)
		r.Post("/liquidate", s.handleLiquidate)

		r.Get("/constants", s.handleConstants)
		r.Get("/health-factor", s.handleSimulateHealthFactor)
		r.Get("/assets", s.handleAssets)
		r.Get("/assets/{asset}/value", s.handleAssetValue)
		r.Get("/assets/{asset}/amount", s.handleAssetAmount)
		r.Get("/accounts/{userID}", s.handleAccountSummary)
		r.Get("/accounts/{userID}/health-factor", s.handleHealthFactor)
		r.Get("/accounts/{userID}/collateral/{asset}", s.handleCollateralBalance)
		r.Get("/accounts/{userID}/journal", s.handleAccountJournal)
		r.Get("/events", s.handleEvents)
		r.Get("/operations/{operationID}", s.handleOperation)
		r.Get("/watermark", s.handleWatermark)
	})

	return r
}

// --- mutation handlers ------------------------------------------------------

type depositRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Asset  string    `json:"asset"`
	Amount string    `json:"amount"`
}

func (s *HTTPServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	opID, err := s.engine.Deposit(r.Context(), req.UserID, req.Asset, amount)
	s.respondOperation(w, opID, err)
}

func (s *HTTPServer) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	opID, err := s.engine.Redeem(r.Context(), req.UserID, req.Asset, amount)
	s.respondOperation(w, opID, err)
}

type liabilityRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Amount string    `json:"amount"`
}

func (s *HTTPServer) handleMint(w http.ResponseWriter, r *http.Request) {
	var req liabilityRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	opID, err := s.engine.Mint(r.Context(), req.UserID, amount)
	s.respondOperation(w, opID, err)
}

func (s *HTTPServer) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req liabilityRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	opID, err := s.engine.Burn(r.Context(), req.UserID, amount)
	s.respondOperation(w, opID, err)
}

type depositAndMintRequest struct {
	UserID        uuid.UUID `json:"user_id"`
	Asset         string    `json:"asset"`
	DepositAmount string    `json:"deposit_amount"`
	MintAmount    string    `json:"mint_amount"`
}

func (s *HTTPServer) handleDepositAndMint(w http.ResponseWriter, r *http.Request) {
	var req depositAndMintRequest
	if !s.decode(w, r, &req) {
		return
	}
	depositAmount, ok := s.parseAmount(w, req.DepositAmount)
	if !ok {
		return
	}
	mintAmount, ok := s.parseAmount(w, req.MintAmount)
	if !ok {
		return
	}
	opID, err := s.engine.DepositAndMint(r.Context(), req.UserID, req.Asset, depositAmount, mintAmount)
	s.respondOperation(w, opID, err)
}

type redeemForBurnRequest struct {
	UserID       uuid.UUID `json:"user_id"`
	Asset        string    `json:"asset"`
	RedeemAmount string    `json:"redeem_amount"`
	BurnAmount   string    `json:"burn_amount"`
}

func (s *HTTPServer) handleRedeemForBurn(w http.ResponseWriter, r *http.Request) {
	var req redeemForBurnRequest
	if !s.decode(w, r, &req) {
		return
	}
	redeemAmount, ok := s.parseAmount(w, req.RedeemAmount)
	if !ok {
		return
	}
	burnAmount, ok := s.parseAmount(w, req.BurnAmount)
	if !ok {
		return
	}
	opID, err := s.engine.RedeemForBurn(r.Context(), req.UserID, req.Asset, redeemAmount, burnAmount)
	s.respondOperation(w, opID, err)
}

type liquidateRequest struct {
	LiquidatorID uuid.UUID `json:"liquidator_id"`
	TargetID     uuid.UUID `json:"target_id"`
	Asset        string    `json:"asset"`
	DebtToCover  string    `json:"debt_to_cover"`
}

func (s *HTTPServer) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	debtToCover, ok := s.parseAmount(w, req.DebtToCover)
	if !ok {
		return
	}
	opID, err := s.engine.Liquidate(r.Context(), req.LiquidatorID, req.TargetID, req.Asset, debtToCover)
	s.respondOperation(w, opID, err)
}

// --- query handlers ---------------------------------------------------------

func (s *HTTPServer) handleConstants(w http.ResponseWriter, r *http.Request) {
	c := engine.ProtocolConstants()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"precision":             c.Precision.String(),
		"liquidation_threshold": c.LiquidationThreshold.String(),
		"liquidation_precision": c.LiquidationPrecision.String(),
		"liquidation_bonus":     c.LiquidationBonus.String(),
		"min_health_factor":     c.MinHealthFactor.String(),
	})
}

// handleSimulateHealthFactor evaluates the solvency formula for an arbitrary
// (liability, collateral value) pair, without touching any account.
func (s *HTTPServer) handleSimulateHealthFactor(w http.ResponseWriter, r *http.Request) {
	liability, ok := s.parseAmount(w, r.URL.Query().Get("liability"))
	if !ok {
		return
	}
	collateralValue, ok := s.parseAmount(w, r.URL.Query().Get("collateral_value"))
	if !ok {
		return
	}
	if liability.Sign() < 0 || collateralValue.Sign() < 0 {
		s.writeError(w, engine.ErrInvalidAmount)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"liability":        liability.String(),
		"collateral_value": collateralValue.String(),
		"health_factor":    engine.HealthFactorFor(liability, collateralValue).String(),
	})
}

func (s *HTTPServer) handleAssets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"assets": s.engine.Assets()})
}

func (s *HTTPServer) handleAssetValue(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	amount, ok := s.parseAmount(w, r.URL.Query().Get("amount"))
	if !ok {
		return
	}
	value, err := s.engine.ValueInUSD(r.Context(), asset, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"asset":     asset,
		"amount":    amount.String(),
		"usd_value": value.String(),
	})
}

func (s *HTTPServer) handleAssetAmount(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	usd, ok := s.parseAmount(w, r.URL.Query().Get("usd"))
	if !ok {
		return
	}
	amount, err := s.engine.AmountFromUSD(r.Context(), asset, usd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"asset":     asset,
		"usd_value": usd.String(),
		"amount":    amount.String(),
	})
}

func (s *HTTPServer) handleAccountSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.parseUUID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	summary, err := s.engine.Summary(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	collateral := make(map[string]string, len(summary.Collateral))
	for asset, balance := range summary.Collateral {
		collateral[asset] = balance.String()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":              summary.UserID,
		"liability":            summary.Liability.String(),
		"collateral":           collateral,
		"collateral_value_usd": summary.CollateralValueUSD.String(),
		"health_factor":        summary.HealthFactor.String(),
	})
}

func (s *HTTPServer) handleHealthFactor(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.parseUUID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	hf, err := s.engine.HealthFactor(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"user_id":       userID.String(),
		"health_factor": hf.String(),
	})
}

func (s *HTTPServer) handleCollateralBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.parseUUID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	asset := chi.URLParam(r, "asset")
	balance, err := s.engine.CollateralBalance(userID, asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"user_id": userID.String(),
		"asset":   asset,
		"balance": balance.String(),
	})
}

func (s *HTTPServer) handleAccountJournal(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.parseUUID(w, chi.URLParam(r, "userID"))
	if !ok {
		return
	}
	limit, offset := pagination(r)
	entries, err := s.queries.AccountJournal(r.Context(), userID, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	events, err := s.queries.Events(r.Context(), r.URL.Query().Get("type"), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *HTTPServer) handleOperation(w http.ResponseWriter, r *http.Request) {
	operationID, ok := s.parseUUID(w, chi.URLParam(r, "operationID"))
	if !ok {
		return
	}
	events, err := s.queries.Operation(r.Context(), operationID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(events) == 0 {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "operation not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// handleWatermark reports how far the durable log trails the live engine.
func (s *HTTPServer) handleWatermark(w http.ResponseWriter, r *http.Request) {
	persisted, err := s.queries.Watermark(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{
		"persisted_sequence": persisted,
		"engine_sequence":    s.engine.Sequence(),
	})
}

// --- plumbing ---------------------------------------------------------------

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (s *HTTPServer) parseAmount(w http.ResponseWriter, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("malformed amount %q", raw)})
		return nil, false
	}
	return amount, true
}

func (s *HTTPServer) parseUUID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("malformed id %q", raw)})
		return uuid.Nil, false
	}
	return id, true
}

func (s *HTTPServer) respondOperation(w http.ResponseWriter, opID uuid.UUID, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"operation_id": opID.String()})
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]string{"error": err.Error()}

	switch {
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrAssetNotAllowed):
		status = http.StatusBadRequest

	case errors.Is(err, engine.ErrSolvencyBroken),
		errors.Is(err, engine.ErrInsufficientCollateral),
		errors.Is(err, engine.ErrInsufficientDebt),
		errors.Is(err, engine.ErrHealthFactorOK),
		errors.Is(err, engine.ErrHealthFactorNotImproved):
		status = http.StatusConflict

	case errors.Is(err, engine.ErrReentrantCall):
		// Another operation is in flight; the caller should retry.
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "0")

	case errors.Is(err, engine.ErrTransferFailed),
		errors.Is(err, engine.ErrMintFailed),
		errors.Is(err, oracle.ErrInvalidPrice):
		status = http.StatusBadGateway
	}

	var solvErr *engine.SolvencyError
	if errors.As(err, &solvErr) {
		body["health_factor"] = solvErr.HealthFactor.String()
	}

	s.writeJSON(w, status, body)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("write response failed")
	}
}

func pagination(r *http.Request) (limit, offset int) {
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		offset = v
	}
	return limit, offset
}
