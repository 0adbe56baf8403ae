package stream

import (
	"time"

	"channel-index/internal/domain"
)

// messageEvent is the raw JSON shape the source bridge puts on the wire for
// one message. The shape is loose at the source; required fields are
// validated here before an event enters the pipeline.
type messageEvent struct {
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	Text      *string   `json:"text"`
	Date      time.Time `json:"date"`
	ChatTitle string    `json:"chat_title"`
}

// toDomain converts the wire shape into a keyed event. The second return
// value is false when the key fields are missing; such events cannot be
// addressed and are dropped here. A null text passes through as empty: the
// coordinator discards it as a malformed message while still advancing its
// position past the message id.
func (e messageEvent) toDomain() (domain.MessageEvent, bool) {
	if e.ChatID == 0 || e.MessageID == 0 {
		return domain.MessageEvent{}, false
	}

	text := ""
	if e.Text != nil {
		text = *e.Text
	}

	return domain.MessageEvent{
		ChatID:    e.ChatID,
		MessageID: e.MessageID,
		Text:      text,
		Timestamp: e.Date,
		ChatTitle: e.ChatTitle,
	}, true
}
