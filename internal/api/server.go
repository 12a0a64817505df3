// Package api exposes the venue over a JSON HTTP surface. Handlers are thin:
// they decode, call the venue, and map the error taxonomy to status codes.
// All monetary fields cross the wire as decimal strings in 7-decimal fixed
// point.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"steptions/internal/auth"
	"steptions/internal/oracle"
	"steptions/internal/venue"
)

// Deps wires the server to the rest of the system. Prices is optional; when
// set, the server exposes an endpoint to publish prices into a static feed.
type Deps struct {
	Venue  *venue.Venue
	Prices *oracle.Static
}

// Server serves the venue API.
type Server struct {
	venue  *venue.Venue
	prices *oracle.Static
	server *http.Server
}

// NewServer builds the server and its route table.
func NewServer(deps Deps) *Server {
	return &Server{
		venue:  deps.Venue,
		prices: deps.Prices,
	}
}

// Handler returns the server's route table wrapped in the credential
// middleware. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/initialize", s.handleInitialize)
	mux.HandleFunc("GET /v1/pools", s.handleListPools)
	mux.HandleFunc("POST /v1/pools", s.handleAddPool)
	mux.HandleFunc("GET /v1/pools/{id}", s.handleGetPool)
	mux.HandleFunc("PUT /v1/pools/{id}/status", s.handleSetPoolStatus)
	mux.HandleFunc("PUT /v1/pools/{id}/feed", s.handleUpdatePriceFeed)
	mux.HandleFunc("POST /v1/pools/{id}/deposits", s.handleDeposit)
	mux.HandleFunc("POST /v1/pools/{id}/withdrawals", s.handleWithdraw)
	mux.HandleFunc("GET /v1/pools/{id}/providers/{provider}", s.handleProviderShares)
	mux.HandleFunc("POST /v1/options", s.handleBuyOption)
	mux.HandleFunc("GET /v1/options/{id}", s.handleGetOption)
	mux.HandleFunc("POST /v1/options/{id}/exercise", s.handleExercise)
	mux.HandleFunc("POST /v1/options/{id}/expire", s.handleExpire)

	if s.prices != nil {
		mux.HandleFunc("PUT /v1/prices", s.handleSetPrice)
	}

	return withCredential(mux)
}

// Start begins serving on addr in the background.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Starting API server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// withCredential copies a Bearer token from the Authorization header into the
// request context. The venue's authorizer decides what it proves.
func withCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			ctx := auth.WithSecret(r.Context(), strings.TrimPrefix(h, "Bearer "))
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps the venue error taxonomy to HTTP status codes.
func statusFor(kind string) int {
	switch kind {
	case "pool_not_found", "option_not_found":
		return http.StatusNotFound
	case "unauthorized", "not_option_owner":
		return http.StatusForbidden
	case "invalid_amount", "arithmetic_overflow":
		return http.StatusBadRequest
	case "not_initialized", "already_initialized", "pool_not_active",
		"pool_already_exists", "option_not_active", "option_expired",
		"insufficient_liquidity", "insufficient_shares", "transfer_failed":
		return http.StatusConflict
	case "invalid_price":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := venue.Kind(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("API request failed")
	}
	writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", venue.ErrInvalidAmount, err)
	}
	return nil
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad id %q", venue.ErrInvalidAmount, r.PathValue("id"))
	}
	return id, nil
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q is not a decimal integer", venue.ErrInvalidAmount, field, s)
	}
	return v, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type optionResponse struct {
	ID               uint64 `json:"id"`
	PoolID           uint64 `json:"pool_id"`
	Buyer            string `json:"buyer"`
	Kind             string `json:"kind"`
	Strike           string `json:"strike"`
	Expiry           int64  `json:"expiry"`
	Amount           string `json:"amount"`
	PremiumPaid      string `json:"premium_paid"`
	CollateralLocked string `json:"collateral_locked"`
	State            string `json:"state"`
}

func toOptionResponse(opt venue.Option) optionResponse {
	return optionResponse{
		ID:               opt.ID,
		PoolID:           opt.PoolID,
		Buyer:            opt.Buyer,
		Kind:             string(opt.Kind),
		Strike:           bigString(opt.Strike),
		Expiry:           opt.Expiry,
		Amount:           bigString(opt.Amount),
		PremiumPaid:      bigString(opt.PremiumPaid),
		CollateralLocked: bigString(opt.CollateralLocked),
		State:            string(opt.State),
	}
}

type poolResponse struct {
	ID               uint64 `json:"id"`
	SettlementAsset  string `json:"settlement_asset"`
	UnderlyingAsset  string `json:"underlying_asset"`
	PriceFeed        string `json:"price_feed"`
	Name             string `json:"name"`
	Active           bool   `json:"active"`
	TotalLiquidity   string `json:"total_liquidity"`
	LockedCollateral string `json:"locked_collateral"`
	TotalShares      string `json:"total_shares"`
}

func (s *Server) poolResponse(ctx context.Context, id uint64) (poolResponse, error) {
	pool, err := s.venue.Pool(ctx, id)
	if err != nil {
		return poolResponse{}, err
	}
	acct, err := s.venue.Accounting(ctx, id)
	if err != nil {
		return poolResponse{}, err
	}
	return poolResponse{
		ID:               pool.ID,
		SettlementAsset:  pool.SettlementAsset,
		UnderlyingAsset:  pool.UnderlyingAsset,
		PriceFeed:        pool.PriceFeed,
		Name:             pool.Name,
		Active:           pool.Active,
		TotalLiquidity:   bigString(acct.TotalLiquidity),
		LockedCollateral: bigString(acct.LockedCollateral),
		TotalShares:      bigString(acct.TotalShares),
	}, nil
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Admin string `json:"admin"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.venue.Initialize(r.Context(), req.Admin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"admin": req.Admin})
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	ids, err := s.venue.ListPools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	pools := make([]poolResponse, 0, len(ids))
	for _, id := range ids {
		p, err := s.poolResponse(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		pools = append(pools, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

func (s *Server) handleAddPool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SettlementAsset string `json:"settlement_asset"`
		UnderlyingAsset string `json:"underlying_asset"`
		PriceFeed       string `json:"price_feed"`
		Name            string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := s.venue.AddPool(r.Context(), req.SettlementAsset, req.UnderlyingAsset, req.PriceFeed, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	pool, err := s.poolResponse(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pool, err := s.poolResponse(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleSetPoolStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.venue.SetPoolStatus(r.Context(), id, req.Active); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": req.Active})
}

func (s *Server) handleUpdatePriceFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		PriceFeed string `json:"price_feed"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.venue.UpdatePoolPriceFeed(r.Context(), id, req.PriceFeed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "price_feed": req.PriceFeed})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Provider string `json:"provider"`
		Amount   string `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	shares, err := s.venue.ProvideLiquidity(r.Context(), id, req.Provider, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"shares": bigString(shares)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Provider string `json:"provider"`
		Shares   string `json:"shares"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		writeError(w, err)
		return
	}

	amount, err := s.venue.WithdrawLiquidity(r.Context(), id, req.Provider, shares)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"amount": bigString(amount)})
}

func (s *Server) handleProviderShares(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	provider := r.PathValue("provider")

	shares, err := s.venue.ProviderShares(r.Context(), id, provider)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"provider": provider,
		"shares":   bigString(shares),
	})
}

func (s *Server) handleBuyOption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PoolID uint64 `json:"pool_id"`
		Buyer  string `json:"buyer"`
		Kind   string `json:"kind"`
		Strike string `json:"strike"`
		Expiry int64  `json:"expiry"`
		Amount string `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	strike, err := parseAmount("strike", req.Strike)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.venue.BuyOption(r.Context(), req.PoolID, req.Buyer, venue.OptionKind(req.Kind), strike, req.Expiry, amount)
	if err != nil {
		writeError(w, err)
		return
	}

	opt, err := s.venue.Option(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOptionResponse(opt))
}

func (s *Server) handleGetOption(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	opt, err := s.venue.Option(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOptionResponse(opt))
}

func (s *Server) handleExercise(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	payoff, err := s.venue.ExerciseOption(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payoff": bigString(payoff)})
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.venue.ExpireOption(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": string(venue.Expired)})
}

// handleSetPrice publishes a price into the static feed. Only wired when the
// venue runs against a static oracle.
func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feed  string `json:"feed"`
		Asset string `json:"asset"`
		Price string `json:"price"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	if price.Sign() <= 0 {
		writeError(w, fmt.Errorf("%w: price must be positive", venue.ErrInvalidAmount))
		return
	}

	s.prices.Set(req.Feed, req.Asset, price, time.Now())
	writeJSON(w, http.StatusOK, map[string]string{
		"feed":  req.Feed,
		"asset": req.Asset,
		"price": price.String(),
	})
}
