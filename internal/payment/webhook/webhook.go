package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/schoenhaut/inventory-service/internal/model"
	"github.com/schoenhaut/inventory-service/internal/stock"
	"github.com/schoenhaut/inventory-service/internal/stock/dto"
	"github.com/schoenhaut/inventory-service/pkg/logger"
	"go.uber.org/zap"
)

const dedupTTL = 24 * time.Hour

// Deduper marks provider event ids as seen so webhook replays stay harmless.
// The ledger itself never deduplicates; that contract lives here, with the
// caller.
type Deduper interface {
	SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotency(ctx context.Context, key string) error
}

// Handler receives payment-provider webhooks and invokes the stock ledger at
// the two points that matter: confirmed capture and refund.
type Handler struct {
	uc     stock.UseCase
	dedup  Deduper
	logger logger.ZapLogger
}

func NewHandler(uc stock.UseCase, dedup Deduper, log logger.ZapLogger) *Handler {
	return &Handler{uc: uc, dedup: dedup, logger: log}
}

type webhookRequest struct {
	EventID   string                   `json:"event_id"`
	OrderID   string                   `json:"order_id"`
	PaymentID string                   `json:"payment_id"`
	Items     []dto.StockChangeRequest `json:"items"`
}

type webhookResponse struct {
	Received       bool   `json:"received"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	RequiresReview bool   `json:"requires_review,omitempty"`
	Message        string `json:"message,omitempty"`
}

// HandlePaymentConfirmed decrements stock for a captured payment. Providers
// retry deliveries, so replays of the same event id answer 200 without
// touching the ledger. When stock turns out short after capture, the response
// still answers 200 so the provider stops retrying, and flags the order for
// manual review instead.
func (h *Handler) HandlePaymentConfirmed(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	key := "webhook:payment:" + req.EventID
	if h.isDuplicate(r.Context(), w, key) {
		return
	}

	result, err := h.uc.DecreaseStock(r.Context(), req.Items, req.OrderID, req.PaymentID)
	if err != nil {
		h.logger.Error("payment webhook: stock decrement failed",
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		// The event id was claimed before the ledger call; give it back so the
		// provider's retry is not answered as a duplicate.
		h.releaseDedup(r.Context(), key)
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Message: "stock state unknown, delivery will be retried"})
		return
	}

	if !result.Success {
		h.logger.Error("payment webhook: stock insufficient after captured payment",
			zap.String("order_id", req.OrderID),
			zap.String("payment_id", req.PaymentID),
			zap.String("detail", result.Error),
		)
		writeJSON(w, http.StatusOK, webhookResponse{
			Received:       true,
			RequiresReview: true,
			Message:        result.Error,
		})
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Received: true})
}

// HandleRefund returns an order's line items to the pool.
func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	key := "webhook:refund:" + req.EventID
	if h.isDuplicate(r.Context(), w, key) {
		return
	}

	_, err := h.uc.IncreaseStock(r.Context(), req.Items, req.OrderID, req.PaymentID, model.StockEventRefund)
	if err != nil {
		h.logger.Error("refund webhook: stock increment failed",
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		h.releaseDedup(r.Context(), key)
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Message: "stock state unknown, delivery will be retried"})
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Received: true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*webhookRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Message: "invalid request body"})
		return nil, false
	}
	if req.EventID == "" || req.OrderID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Message: "event_id, order_id and items are required"})
		return nil, false
	}

	return &req, true
}

func (h *Handler) isDuplicate(ctx context.Context, w http.ResponseWriter, key string) bool {
	fresh, err := h.dedup.SetIdempotency(ctx, key, dedupTTL)
	if err != nil {
		h.logger.Error("webhook dedup check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Message: "dedup unavailable, delivery will be retried"})
		return true
	}
	if !fresh {
		writeJSON(w, http.StatusOK, webhookResponse{Received: true, Duplicate: true})
		return true
	}
	return false
}

func (h *Handler) releaseDedup(ctx context.Context, key string) {
	if err := h.dedup.ReleaseIdempotency(ctx, key); err != nil {
		h.logger.Error("failed to release webhook dedup key, retries will be answered as duplicates",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
