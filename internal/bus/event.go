package bus

import "time"

// Event kinds. Subscribers filter by prefix, so keep the namespaces stable.
const (
	KindIncoming = "imsg.message"

	KindWatchError     = "watch.error"
	KindWatchRecovered = "watch.recovered"

	KindSessionActivated = "coach.session_activated"
	KindSessionEnded     = "coach.session_ended"
	KindHistoryAppended  = "coach.history_appended"
	KindCoachingSent     = "coach.coaching_sent"
	KindSendFailed       = "coach.send_failed"

	KindDeliverySent   = "delivery.sent"
	KindDeliveryFailed = "delivery.failed"

	KindStatusChanged = "daemon.status_changed"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
