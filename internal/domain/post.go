package domain

import (
	"fmt"
	"time"
)

// SourceID identifies the originating message of a Post. At most one post is
// ever stored per SourceID.
type SourceID struct {
	ChatID    int64 `bson:"chat_id" json:"chat_id"`
	MessageID int64 `bson:"message_id" json:"message_id"`
}

func (id SourceID) String() string {
	return fmt.Sprintf("%d/%d", id.ChatID, id.MessageID)
}

// Valid reports whether both key components are set.
func (id SourceID) Valid() bool {
	return id.ChatID != 0 && id.MessageID != 0
}

// Quality labels assigned to extracted links.
const (
	Quality480p    = "480p"
	Quality720p    = "720p"
	Quality720HEVC = "720p HEVC"
	Quality1080p   = "1080p"
	Quality4K      = "4K"
	QualityUnknown = "unknown"
)

// Link is one categorized download link inside a Post.
type Link struct {
	URL string `bson:"url" json:"url"`

	// Quality is the internal quality code determined at extraction time.
	Quality string `bson:"quality" json:"-"`

	// Episode is the episode tag of the link's message section, if any.
	Episode string `bson:"episode,omitempty" json:"-"`

	// Label is what callers display: either the quality label or
	// "Episode N". Within one post all links carry the same label style.
	Label string `bson:"label" json:"label"`
}

// Post is the canonical structured record derived from one source message.
type Post struct {
	SourceID  SourceID  `bson:"source_id" json:"source_id"`
	Title     string    `bson:"title" json:"title"`
	RawText   string    `bson:"raw_text" json:"raw_text"`
	Links     []Link    `bson:"links" json:"links"`
	ChatTitle string    `bson:"chat_title" json:"chat_title"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`

	// LastAccessed is updated on every successful read. It exists for
	// informational and future eviction use only.
	LastAccessed time.Time `bson:"last_accessed" json:"-"`
}

// MessageEvent is one raw message delivered by the source transport.
type MessageEvent struct {
	ChatID    int64
	MessageID int64
	Text      string
	Timestamp time.Time
	ChatTitle string
}

// SourceID returns the composite key of the event's originating message.
func (e MessageEvent) SourceID() SourceID {
	return SourceID{ChatID: e.ChatID, MessageID: e.MessageID}
}
