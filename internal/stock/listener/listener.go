package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/schoenhaut/inventory-service/internal/model"
	"github.com/schoenhaut/inventory-service/internal/stock"
	"github.com/schoenhaut/inventory-service/internal/stock/dto"
	"github.com/schoenhaut/inventory-service/pkg/broker"
	"github.com/schoenhaut/inventory-service/pkg/logger"
	"go.uber.org/zap"
)

// StockListener consumes payment lifecycle events from the order pipeline and
// drives the ledger: confirmed capture decrements, refund or cancellation
// returns quantity to the pool.
type StockListener struct {
	consumer *broker.KafkaConsumer
	uc       stock.UseCase
	logger   logger.ZapLogger
}

func NewStockListener(consumer *broker.KafkaConsumer, uc stock.UseCase, logger logger.ZapLogger) *StockListener {
	return &StockListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
	}
}

func (l *StockListener) Start(ctx context.Context) {
	l.logger.Info("Starting Stock Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Stock Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

const (
	eventPaymentConfirmed = "PaymentConfirmed"
	eventPaymentRefunded  = "PaymentRefunded"
	eventOrderCancelled   = "OrderCancelled"
)

type PaymentEvent struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Payload   PaymentPayload `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

type PaymentPayload struct {
	OrderID   string             `json:"order_id"`
	PaymentID string             `json:"payment_id"`
	Items     []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (l *StockListener) processMessage(ctx context.Context, value []byte) {
	var event PaymentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	switch event.EventType {
	case eventPaymentConfirmed:
		l.handleConfirmed(ctx, &event)
	case eventPaymentRefunded:
		l.handleReturn(ctx, &event, model.StockEventRefund)
	case eventOrderCancelled:
		l.handleReturn(ctx, &event, model.StockEventCancelled)
	}
}

func (l *StockListener) handleConfirmed(ctx context.Context, event *PaymentEvent) {
	l.logger.Info("Processing PaymentConfirmed event", zap.String("order_id", event.Payload.OrderID))

	result, err := l.uc.DecreaseStock(ctx, changeRequests(event.Payload.Items), event.Payload.OrderID, event.Payload.PaymentID)
	if err != nil {
		l.logger.Error("Failed to decrease stock for confirmed payment",
			zap.String("order_id", event.Payload.OrderID),
			zap.Error(err),
		)
		return
	}

	if !result.Success {
		// Funds are already captured; the ledger never rolls payments back.
		// The order needs a human.
		l.logger.Error("Stock insufficient after captured payment, order flagged for manual review",
			zap.String("order_id", event.Payload.OrderID),
			zap.String("payment_id", event.Payload.PaymentID),
			zap.String("detail", result.Error),
		)
	}
}

func (l *StockListener) handleReturn(ctx context.Context, event *PaymentEvent, kind model.StockEventKind) {
	l.logger.Info("Processing stock return event",
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.Payload.OrderID),
	)

	_, err := l.uc.IncreaseStock(ctx, changeRequests(event.Payload.Items), event.Payload.OrderID, event.Payload.PaymentID, kind)
	if err != nil {
		l.logger.Error("Failed to return stock",
			zap.String("order_id", event.Payload.OrderID),
			zap.Error(err),
		)
	}
}

func changeRequests(items []OrderItemPayload) []dto.StockChangeRequest {
	reqs := make([]dto.StockChangeRequest, len(items))
	for i, item := range items {
		reqs[i] = dto.StockChangeRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return reqs
}
