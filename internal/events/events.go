package events

import (
	"context"
	"errors"
	"time"

	"requisition-backend/internal/logger"

	"go.uber.org/zap"
)

// Event types published after a transaction commits.
const (
	RequestCreated         = "request.created"
	RequestStatusChanged   = "request.status_changed"
	RequestItemIssued      = "request.item_issued"
	StockMovementRecorded  = "stock.movement_recorded"
	PurchaseOrderCreated   = "purchase_order.created"
	GoodsReceiptCreated    = "goods_receipt.created"
	PurchaseOrderCancelled = "purchase_order.cancelled"
)

// Event is the envelope sent to websocket clients and to the message broker.
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func New(eventType string, payload interface{}) Event {
	return Event{Type: eventType, OccurredAt: time.Now().UTC(), Payload: payload}
}

// Publisher delivers events. Publish must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to several publishers and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishAll sends events in order, logging failures instead of returning them.
// Callers use it after commit, when the state change is already durable.
func PublishAll(ctx context.Context, p Publisher, evs ...Event) {
	if p == nil {
		return
	}
	for _, e := range evs {
		if err := p.Publish(ctx, e); err != nil {
			logger.Warn("[events] publish failed", zap.String("type", e.Type), zap.Error(err))
		}
	}
}
