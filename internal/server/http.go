package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"EcoLedger/internal/economy"
	"EcoLedger/internal/messages"
	"EcoLedger/internal/observability"
)

// Server is the HTTP command surface over the balance cache. Every handler
// runs purely against in-memory state: validation failures become structured
// JSON errors, never panics, and no request ever blocks on storage I/O.
type Server struct {
	cache      *economy.BalanceCache
	fmtr       *messages.Formatter
	defaultTop int
	metrics    *observability.Metrics
	health     *observability.HealthChecker
	log        zerolog.Logger
}

func New(cache *economy.BalanceCache, fmtr *messages.Formatter, defaultTop int, metrics *observability.Metrics, health *observability.HealthChecker, log zerolog.Logger) *Server {
	return &Server{
		cache:      cache,
		fmtr:       fmtr,
		defaultTop: defaultTop,
		metrics:    metrics,
		health:     health,
		log:        log,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.countRequests)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/accounts/{id}/balance", s.getBalance)
		r.Post("/accounts/{id}/deposit", s.deposit)
		r.Post("/accounts/{id}/withdraw", s.withdraw)
		r.Put("/accounts/{id}/balance", s.setBalance)
		r.Post("/pay", s.pay)
		r.Get("/leaderboard", s.leaderboard)
	})

	return r
}

type balanceResponse struct {
	AccountID   uuid.UUID `json:"account_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Balance     float64   `json:"balance"`
	Formatted   string    `json:"formatted"`
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

type payRequest struct {
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
	Amount float64   `json:"amount"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}
	if !s.cache.HasAccount(id) {
		writeError(w, http.StatusNotFound, "unknown_account", "no active account for this id")
		return
	}
	s.writeBalance(w, id)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}
	req, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if !s.cache.HasAccount(id) {
		writeError(w, http.StatusNotFound, "unknown_account", "no active account for this id")
		return
	}
	if !s.cache.Deposit(id, req.Amount) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", messages.InvalidAmount)
		return
	}
	s.writeBalance(w, id)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}
	req, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if !s.cache.HasAccount(id) {
		writeError(w, http.StatusNotFound, "unknown_account", "no active account for this id")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", messages.InvalidAmount)
		return
	}
	if !s.cache.Withdraw(id, req.Amount) {
		writeError(w, http.StatusUnprocessableEntity, "insufficient_funds", "insufficient funds")
		return
	}
	s.writeBalance(w, id)
}

// setBalance is the admin set/reset operation; setting 0 is the reset.
func (s *Server) setBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.accountID(w, r)
	if !ok {
		return
	}
	req, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if !s.cache.SetBalance(id, req.Amount) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", messages.InvalidAmount)
		return
	}
	s.writeBalance(w, id)
}

func (s *Server) pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}
	if req.From == uuid.Nil || req.To == uuid.Nil {
		writeError(w, http.StatusBadRequest, "bad_request", "from and to account ids are required")
		return
	}
	if req.From == req.To {
		writeError(w, http.StatusUnprocessableEntity, "pay_self", messages.PaySelf)
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", messages.InvalidAmount)
		return
	}
	if !s.cache.HasAccount(req.From) || !s.cache.HasAccount(req.To) {
		writeError(w, http.StatusNotFound, "unknown_account", "both accounts must have an active session")
		return
	}
	if !s.cache.Withdraw(req.From, req.Amount) {
		writeError(w, http.StatusUnprocessableEntity, "insufficient_funds", "insufficient funds")
		return
	}
	s.cache.Deposit(req.To, req.Amount)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":   s.balanceBody(req.From),
		"to":     s.balanceBody(req.To),
		"amount": req.Amount,
	})
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := s.defaultTop
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries := s.cache.TopBalances(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"lines":   s.fmtr.FormatTop(entries),
	})
}

// --- helpers ---

func (s *Server) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_account_id", "account id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) balanceBody(id uuid.UUID) balanceResponse {
	name, _ := s.cache.DisplayName(id)
	balance := s.cache.GetBalance(id)
	return balanceResponse{
		AccountID:   id,
		DisplayName: name,
		Balance:     balance,
		Formatted:   s.fmtr.FormatAmount(balance),
	}
}

func (s *Server) writeBalance(w http.ResponseWriter, id uuid.UUID) {
	writeJSON(w, http.StatusOK, s.balanceBody(id))
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (amountRequest, bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return amountRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Error: msg, Code: code})
}

// --- middleware ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.metrics != nil {
			route := chi.RouteContext(r.Context()).RoutePattern()
			s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		}
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
				writeError(w, http.StatusInternalServerError, "internal", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
