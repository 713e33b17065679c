package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/imcoach/internal/bus"
	"github.com/matheus3301/imcoach/internal/coach"
	"github.com/matheus3301/imcoach/internal/store"
	"go.uber.org/zap"
)

// TextSender is the transport that actually puts a message on the wire.
type TextSender interface {
	SendText(ctx context.Context, to, text string) error
}

// DeliveryEvent is the payload of delivery.* bus events.
type DeliveryEvent struct {
	ID    string
	To    string
	Kind  store.DeliveryKind
	Error string
}

// Sender records every outgoing message in the delivery log around a
// synchronous call to the transport. It satisfies coach.Sender.
type Sender struct {
	db     *store.DB
	sender TextSender
	bus    *bus.Bus
	logger *zap.Logger
	newID  func() string
}

// NewSender creates a new outbox sender. db may be nil, in which case
// nothing is recorded and messages go straight to the transport.
func NewSender(db *store.DB, sender TextSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:     db,
		sender: sender,
		bus:    b,
		logger: logger.Named("outbox"),
		newID:  uuid.NewString,
	}
}

// Send queues, transmits and marks one message. The transport error is
// returned unchanged in meaning; bookkeeping errors are only logged.
func (s *Sender) Send(ctx context.Context, to, text string) error {
	d := store.Delivery{
		ID:        s.newID(),
		Recipient: to,
		Kind:      kindFor(coach.SendReason(ctx)),
		Body:      text,
	}
	if s.db != nil {
		if err := s.db.QueueDelivery(ctx, d); err != nil {
			s.logger.Error("failed to record delivery", zap.Error(err), zap.String("delivery_id", d.ID))
		}
	}

	if err := s.sender.SendText(ctx, to, text); err != nil {
		s.logger.Error("failed to send message", zap.Error(err), zap.String("delivery_id", d.ID), zap.String("to", to))
		if s.db != nil {
			if merr := s.db.MarkDeliveryFailed(context.WithoutCancel(ctx), d.ID, err.Error()); merr != nil {
				s.logger.Error("failed to mark failed", zap.Error(merr), zap.String("delivery_id", d.ID))
			}
		}
		s.bus.Publish(bus.NewEvent(bus.KindDeliveryFailed, DeliveryEvent{ID: d.ID, To: to, Kind: d.Kind, Error: err.Error()}))
		return fmt.Errorf("deliver %s: %w", d.ID, err)
	}

	if s.db != nil {
		if err := s.db.MarkDeliverySent(context.WithoutCancel(ctx), d.ID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("delivery_id", d.ID))
		}
	}
	s.logger.Info("message sent", zap.String("delivery_id", d.ID), zap.String("kind", string(d.Kind)))
	s.bus.Publish(bus.NewEvent(bus.KindDeliverySent, DeliveryEvent{ID: d.ID, To: to, Kind: d.Kind}))
	return nil
}

func kindFor(reason string) store.DeliveryKind {
	switch reason {
	case coach.ReasonAck:
		return store.KindAck
	case coach.ReasonCoaching:
		return store.KindCoaching
	default:
		return store.KindManual
	}
}
