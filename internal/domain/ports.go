package domain

import "context"

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	// Upsert stores the post keyed by its SourceID, replacing any previous
	// version atomically. Re-upserting identical content is a no-op.
	// Returns an error wrapping ErrMalformedKey for an invalid SourceID and
	// one wrapping ErrStorageUnavailable when storage is unreachable.
	Upsert(ctx context.Context, post *Post) error

	// GetByID retrieves a post by source id. Returns nil when absent. A hit
	// schedules a lastAccessed update without blocking the caller.
	GetByID(ctx context.Context, id SourceID) (*Post, error)

	// FindMatching returns every post containing at least one of the query
	// tokens (case-insensitive) in its title or raw text. The full candidate
	// set is returned; ranking and truncation happen above the repository.
	FindMatching(ctx context.Context, tokens []string) ([]Post, error)

	// MaxMessageID returns the highest stored message id for a chat, or 0
	// when the chat has no stored posts. Used as the backfill resume point.
	MaxMessageID(ctx context.Context, chatID int64) (int64, error)
}

// MessageSource is the external transport that delivers raw messages.
type MessageSource interface {
	// FetchHistory returns up to limit messages of a chat with message ids
	// strictly greater than afterMessageID, in ascending message-id order.
	FetchHistory(ctx context.Context, chatID, afterMessageID int64, limit int) ([]MessageEvent, error)
}
