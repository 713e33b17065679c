package store

import "time"

// DeliveryStatus tracks an outgoing message through the transport.
type DeliveryStatus string

const (
	DeliveryQueued DeliveryStatus = "queued"
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryKind says why a message was sent.
type DeliveryKind string

const (
	KindAck      DeliveryKind = "ack"
	KindCoaching DeliveryKind = "coaching"
	KindManual   DeliveryKind = "manual"
)

// Delivery is one row of the delivery log.
type Delivery struct {
	ID           string
	Recipient    string
	Kind         DeliveryKind
	Body         string
	Status       DeliveryStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
