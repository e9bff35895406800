package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/schoenhaut/inventory-service/internal/stock"
	"github.com/schoenhaut/inventory-service/internal/stock/dto"
	"github.com/schoenhaut/inventory-service/pkg/logger"
	"go.uber.org/zap"
)

// StockHandler is the admin-facing HTTP surface of the ledger.
type StockHandler struct {
	uc     stock.UseCase
	logger logger.ZapLogger
}

func NewStockHandler(uc stock.UseCase, log logger.ZapLogger) *StockHandler {
	return &StockHandler{uc: uc, logger: log}
}

type availabilityRequest struct {
	Items []dto.StockChangeRequest `json:"items"`
}

type createItemRequest struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	InitialQuantity int    `json:"initial_quantity"`
}

type adjustRequest struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	NewQuantity int    `json:"new_quantity"`
	Note        string `json:"note"`
}

type movementsResponse struct {
	Movements interface{} `json:"movements"`
	Total     int         `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateStockItem seeds the stock row when a product is listed. Repeated
// calls for the same product return the existing row, so the catalog side can
// retry without double-seeding.
func (h *StockHandler) CreateStockItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ProductID == "" || req.InitialQuantity < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "product_id and a non-negative initial_quantity are required"})
		return
	}

	item, err := h.uc.CreateStockItem(r.Context(), &dto.CreateStockItemInput{
		ProductID:       req.ProductID,
		ProductName:     req.ProductName,
		InitialQuantity: req.InitialQuantity,
		UserID:          r.Header.Get("X-User-ID"),
	})
	if err != nil {
		h.logger.Error("stock item creation failed", zap.String("product_id", req.ProductID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "creation failed"})
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

func (h *StockHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "items required"})
		return
	}

	result, err := h.uc.CheckAvailability(r.Context(), req.Items)
	if err != nil {
		h.logger.Error("availability check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "availability unknown"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *StockHandler) GetStockItem(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "product_id required"})
		return
	}

	item, err := h.uc.GetStockItem(r.Context(), productID)
	if err != nil {
		h.logger.Error("stock item read failed", zap.String("product_id", productID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *StockHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ProductID == "" || req.NewQuantity < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "product_id and a non-negative new_quantity are required"})
		return
	}

	item, err := h.uc.AdjustStock(r.Context(), &dto.AdjustStockInput{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		NewQuantity: req.NewQuantity,
		Note:        req.Note,
		UserID:      r.Header.Get("X-User-ID"),
	})
	if err != nil {
		h.logger.Error("stock adjustment failed", zap.String("product_id", req.ProductID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "adjustment failed"})
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *StockHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := &dto.MovementFilters{
		ProductID: q.Get("product_id"),
		OrderID:   q.Get("order_id"),
		EventKind: q.Get("event_kind"),
		Page:      queryInt(q.Get("page"), 1),
		PageSize:  queryInt(q.Get("page_size"), 50),
	}

	movements, total, err := h.uc.ListMovements(r.Context(), filters)
	if err != nil {
		h.logger.Error("movement listing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, movementsResponse{Movements: movements, Total: total})
}

func (h *StockHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return fallback
}
