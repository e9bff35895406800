package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/schoenhaut/inventory-service/internal/model"
	"github.com/schoenhaut/inventory-service/internal/stock/dto"
	"github.com/schoenhaut/inventory-service/pkg/logger"
)

// Mock deduper
type mockDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMockDeduper() *mockDeduper {
	return &mockDeduper{seen: make(map[string]bool)}
}

func (m *mockDeduper) SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockDeduper) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

// Mock ledger
type mockLedger struct {
	mu               sync.Mutex
	decreaseCalls    int
	increaseCalls    int
	decreaseResult   *dto.OperationResult
	lastKind         model.StockEventKind
	decreaseFailures int
	increaseFailures int
}

func (m *mockLedger) CreateStockItem(ctx context.Context, input *dto.CreateStockItemInput) (*model.StockItem, error) {
	return nil, nil
}

func (m *mockLedger) CheckAvailability(ctx context.Context, items []dto.StockChangeRequest) (*dto.AvailabilityResult, error) {
	return &dto.AvailabilityResult{AllAvailable: true}, nil
}

func (m *mockLedger) DecreaseStock(ctx context.Context, items []dto.StockChangeRequest, orderID, paymentID string) (*dto.OperationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decreaseCalls++
	if m.decreaseFailures > 0 {
		m.decreaseFailures--
		return nil, errors.New("stock store unreachable")
	}
	if m.decreaseResult != nil {
		return m.decreaseResult, nil
	}
	return &dto.OperationResult{Success: true}, nil
}

func (m *mockLedger) IncreaseStock(ctx context.Context, items []dto.StockChangeRequest, orderID, paymentID string, kind model.StockEventKind) (*dto.OperationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.increaseCalls++
	m.lastKind = kind
	if m.increaseFailures > 0 {
		m.increaseFailures--
		return nil, errors.New("stock store unreachable")
	}
	return &dto.OperationResult{Success: true}, nil
}

func (m *mockLedger) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.StockItem, error) {
	return nil, nil
}

func (m *mockLedger) GetStockItem(ctx context.Context, productID string) (*model.StockItem, error) {
	return nil, nil
}

func (m *mockLedger) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockLogEntry, int, error) {
	return nil, 0, nil
}

func testLogger() logger.ZapLogger {
	return logger.NewZapLogger(&logger.ZapLoggerConfig{
		Level:             "fatal",
		Encoding:          "json",
		DisableCaller:     true,
		DisableStacktrace: true,
	})
}

func postEvent(t *testing.T, handlerFunc http.HandlerFunc, body interface{}) (*httptest.ResponseRecorder, webhookResponse) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handlerFunc(rec, req)

	var resp webhookResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, resp
}

func validEvent() webhookRequest {
	return webhookRequest{
		EventID:   "evt-1",
		OrderID:   "order-1",
		PaymentID: "pay-1",
		Items:     []dto.StockChangeRequest{{ProductID: "serum-01", Quantity: 1}},
	}
}

func TestPaymentConfirmed_DecrementsOnce(t *testing.T) {
	ledger := &mockLedger{}
	h := NewHandler(ledger, newMockDeduper(), testLogger())

	rec, resp := postEvent(t, h.HandlePaymentConfirmed, validEvent())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !resp.Received || resp.Duplicate || resp.RequiresReview {
		t.Errorf("unexpected response: %+v", resp)
	}
	if ledger.decreaseCalls != 1 {
		t.Errorf("expected one ledger call, got %d", ledger.decreaseCalls)
	}
}

func TestPaymentConfirmed_ReplayIsHarmless(t *testing.T) {
	ledger := &mockLedger{}
	h := NewHandler(ledger, newMockDeduper(), testLogger())

	postEvent(t, h.HandlePaymentConfirmed, validEvent())
	rec, resp := postEvent(t, h.HandlePaymentConfirmed, validEvent())

	if rec.Code != http.StatusOK {
		t.Fatalf("replay must answer 200, got %d", rec.Code)
	}
	if !resp.Duplicate {
		t.Error("expected duplicate flag on replay")
	}
	if ledger.decreaseCalls != 1 {
		t.Errorf("replay must not reach the ledger, got %d calls", ledger.decreaseCalls)
	}
}

func TestPaymentConfirmed_InsufficientFlagsForReview(t *testing.T) {
	ledger := &mockLedger{decreaseResult: &dto.OperationResult{
		Success: false,
		Error:   "insufficient stock: Night Cream (requested 2, in stock 0)",
	}}
	h := NewHandler(ledger, newMockDeduper(), testLogger())

	rec, resp := postEvent(t, h.HandlePaymentConfirmed, validEvent())

	// 200 on purpose: the provider must stop retrying, the money is captured
	// and the order goes to manual handling.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !resp.RequiresReview {
		t.Error("expected requires_review flag")
	}
	if resp.Message == "" {
		t.Error("expected the shortage detail in the message")
	}
}

func TestPaymentConfirmed_RetryAfterFailureReachesLedger(t *testing.T) {
	ledger := &mockLedger{decreaseFailures: 1}
	h := NewHandler(ledger, newMockDeduper(), testLogger())

	rec, _ := postEvent(t, h.HandlePaymentConfirmed, validEvent())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 while the store is down, got %d", rec.Code)
	}

	// The provider retries the same event id. The failed delivery must not
	// have burned it, or the order would never be decremented.
	rec, resp := postEvent(t, h.HandlePaymentConfirmed, validEvent())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", rec.Code)
	}
	if resp.Duplicate {
		t.Error("retry of a failed delivery must not be answered as a duplicate")
	}
	if ledger.decreaseCalls != 2 {
		t.Errorf("retry must reach the ledger again, got %d calls", ledger.decreaseCalls)
	}
}

func TestRefund_RetryAfterFailureReachesLedger(t *testing.T) {
	ledger := &mockLedger{increaseFailures: 1}
	h := NewHandler(ledger, newMockDeduper(), testLogger())

	rec, _ := postEvent(t, h.HandleRefund, validEvent())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 while the store is down, got %d", rec.Code)
	}

	rec, resp := postEvent(t, h.HandleRefund, validEvent())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", rec.Code)
	}
	if resp.Duplicate {
		t.Error("retry of a failed delivery must not be answered as a duplicate")
	}
	if ledger.increaseCalls != 2 {
		t.Errorf("retry must reach the ledger again, got %d calls", ledger.increaseCalls)
	}
}

func TestRefund_IncrementsWithRefundKind(t *testing.T) {
	ledger := &mockLedger{}
	h := NewHandler(ledger, newMockDeduper(), testLogger())

	rec, resp := postEvent(t, h.HandleRefund, validEvent())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !resp.Received {
		t.Errorf("unexpected response: %+v", resp)
	}
	if ledger.increaseCalls != 1 {
		t.Errorf("expected one ledger call, got %d", ledger.increaseCalls)
	}
	if ledger.lastKind != model.StockEventRefund {
		t.Errorf("expected refund kind, got %s", ledger.lastKind)
	}
}

func TestWebhook_RejectsIncompleteEvent(t *testing.T) {
	ledger := &mockLedger{}
	h := NewHandler(ledger, newMockDeduper(), testLogger())

	rec, _ := postEvent(t, h.HandlePaymentConfirmed, webhookRequest{EventID: "evt-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ledger.decreaseCalls != 0 {
		t.Error("invalid events must not reach the ledger")
	}
}
