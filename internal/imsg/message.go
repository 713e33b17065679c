package imsg

import "time"

// NoText is shown in place of a body that could not be recovered.
const NoText = "(no text)"

// RawRow is one message row as read from chat.db.
type RawRow struct {
	RowID          int64
	GUID           string
	Text           *string
	AttributedBody []byte
	HandleID       string
	ChatID         string
	IsFromMe       bool
	IsRead         bool
	Date           int64
	Service        string
}

// Message is a normalized message. Treat it as a value: it is copied into
// session histories and never modified after Normalize returns it.
type Message struct {
	ID        string
	RowID     int64
	Sender    string
	ChatID    string
	Text      string
	HasText   bool
	IsFromMe  bool
	IsRead    bool
	Service   string
	Timestamp time.Time

	// FromBody is set when Text was recovered from the attributedBody blob.
	FromBody bool
}

// Normalize builds a Message from a store row. The plain text column wins;
// the attributedBody heuristic is only consulted when it is empty.
func Normalize(row RawRow) Message {
	m := Message{
		ID:        row.GUID,
		RowID:     row.RowID,
		Sender:    row.HandleID,
		ChatID:    row.ChatID,
		IsFromMe:  row.IsFromMe,
		IsRead:    row.IsRead,
		Service:   row.Service,
		Timestamp: ToTime(row.Date),
	}
	switch {
	case row.Text != nil && *row.Text != "":
		m.Text, m.HasText = *row.Text, true
	case len(row.AttributedBody) > 0:
		m.Text, m.HasText = DecodeBody(row.AttributedBody)
		m.FromBody = m.HasText
	}
	return m
}

// DisplayText returns the text, or NoText when there is none.
func (m Message) DisplayText() string {
	if !m.HasText {
		return NoText
	}
	return m.Text
}
