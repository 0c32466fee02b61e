package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/database"
	"github.com/trogers1052/paper-trader/internal/models"
	"github.com/trogers1052/paper-trader/internal/trading"
)

const (
	defaultTradesLimit = 50
	maxTradesLimit     = 500
	defaultHistory     = 24 * time.Hour
)

// Ledger is the read side of the ledger exposed over HTTP
type Ledger interface {
	Ping(ctx context.Context) error
	GetBalance(ctx context.Context) (*models.VirtualBalance, error)
	ListOpenPositions(ctx context.Context) ([]*models.Position, error)
	GetOpenPosition(ctx context.Context, tokenID string) (*models.Position, error)
	GetPriceHistory(ctx context.Context, tokenID string, since time.Time) ([]*models.PriceSample, error)
	GetRecentTrades(ctx context.Context, limit int) ([]*models.Trade, error)
	GetTradeByID(ctx context.Context, id int64) (*models.Trade, error)
	GetTradeStats(ctx context.Context) (*models.TradeStats, error)
}

// Opener opens simulated positions
type Opener interface {
	OpenPosition(ctx context.Context, tokenID, tokenName string) (trading.Result, error)
}

// ReferencePricer reports the cached SOL reference price
type ReferencePricer interface {
	ReferencePrice() (price decimal.Decimal, at time.Time, ok bool)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	ledger    Ledger
	opener    Opener
	reference ReferencePricer
	logger    *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(ledger Ledger, opener Opener, reference ReferencePricer, logger *zap.Logger) *Handler {
	return &Handler{
		ledger:    ledger,
		opener:    opener,
		reference: reference,
		logger:    logger.Named("api"),
	}
}

// GetBalance handles GET /balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.ledger.GetBalance(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, balance)
}

// GetPositions handles GET /positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.ledger.ListOpenPositions(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if positions == nil {
		positions = []*models.Position{}
	}

	respondJSON(w, http.StatusOK, positions)
}

// GetPosition handles GET /positions/{token_id}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	tokenID := mux.Vars(r)["token_id"]

	position, err := h.ledger.GetOpenPosition(r.Context(), tokenID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, position)
}

// GetPriceHistory handles GET /positions/{token_id}/history?since=RFC3339
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	tokenID := mux.Vars(r)["token_id"]

	since := time.Now().UTC().Add(-defaultHistory)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	samples, err := h.ledger.GetPriceHistory(r.Context(), tokenID, since)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if samples == nil {
		samples = []*models.PriceSample{}
	}

	respondJSON(w, http.StatusOK, samples)
}

// OpenPosition handles POST /positions
func (h *Handler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID   string `json:"token_id"`
		TokenName string `json:"token_name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.TokenID == "" {
		http.Error(w, "token_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.opener.OpenPosition(r.Context(), req.TokenID, req.TokenName)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !result.Filled() {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"status": result.Status,
			"reason": result.Reason,
		})
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"status":   result.Status,
		"trade":    result.Trade,
		"position": result.Position,
		"balance":  result.Balance,
	})
}

// GetTrades handles GET /trades?limit=N
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTradesLimit)
	}

	trades, err := h.ledger.GetRecentTrades(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if trades == nil {
		trades = []*models.Trade{}
	}

	respondJSON(w, http.StatusOK, trades)
}

// GetTrade handles GET /trades/{id}
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid trade id", http.StatusBadRequest)
		return
	}

	trade, err := h.ledger.GetTradeByID(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, trade)
}

// GetStats handles GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.GetTradeStats(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// GetReferencePrice handles GET /reference-price
func (h *Handler) GetReferencePrice(w http.ResponseWriter, r *http.Request) {
	price, at, ok := h.reference.ReferencePrice()
	if !ok {
		http.Error(w, "reference price not available yet", http.StatusServiceUnavailable)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"price":      price,
		"updated_at": at,
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrPositionNotFound), errors.Is(err, database.ErrTradeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, database.ErrNoBalance):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
