package api

import "time"

// StatusInfo is the GetStatus response.
type StatusInfo struct {
	Profile    string         `json:"profile"`
	State      string         `json:"state"`
	Since      time.Time      `json:"since"`
	Detail     string         `json:"detail,omitempty"`
	UptimeMs   int64          `json:"uptime_ms"`
	UserID     string         `json:"user_id"`
	AgentID    string         `json:"agent_id"`
	ChatDB     string         `json:"chat_db"`
	Position   int64          `json:"position,string"`
	Sessions   int            `json:"sessions"`
	Deliveries map[string]int `json:"deliveries,omitempty"`
	BusDropped int64          `json:"bus_dropped"`
}

// SessionInfo describes one active coaching session.
type SessionInfo struct {
	Target      string    `json:"target"`
	Goal        string    `json:"goal"`
	HistoryLen  int       `json:"history_len"`
	ActivatedAt time.Time `json:"activated_at"`
}

// DeliveryInfo is one delivery log row.
type DeliveryInfo struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// EventEnvelope is one bus event relayed by Watch.
type EventEnvelope struct {
	EventID    string         `json:"event_id"`
	Profile    string         `json:"profile"`
	Kind       string         `json:"kind"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type sessionList struct {
	Sessions []SessionInfo `json:"sessions"`
}

type deliveryList struct {
	Deliveries []DeliveryInfo `json:"deliveries"`
}

type activateRequest struct {
	Contact string `json:"contact"`
	Goal    string `json:"goal"`
}

type endRequest struct {
	Contact string `json:"contact"`
}

type endResponse struct {
	Ended bool `json:"ended"`
}

type sendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type limitRequest struct {
	Limit int `json:"limit"`
}

type watchRequest struct {
	Namespace string `json:"namespace"`
}
