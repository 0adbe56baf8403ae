package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const historyPageSize = 100

// IngesterConfig configures the ingestion coordinator.
type IngesterConfig struct {
	// AllowedChats is the explicit allow-list of monitored chat ids. Events
	// from any other chat are dropped without side effects.
	AllowedChats []int64

	// MaxUpsertElapsed bounds the retry window for one message's upsert.
	// Zero selects the default of 30 seconds.
	MaxUpsertElapsed time.Duration

	// RetryInitialInterval overrides the first retry delay. Zero selects the
	// backoff package default.
	RetryInitialInterval time.Duration
}

// Ingester drives the per-message pipeline: allow-list gate, normalization,
// idempotent storage with retry. A single bad message never halts ingestion
// of subsequent messages.
type Ingester struct {
	allowed       map[int64]struct{}
	normalizer    *Normalizer
	repo          PostRepository
	source        MessageSource
	maxElapsed    time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
}

// NewIngester creates an ingestion coordinator.
func NewIngester(cfg IngesterConfig, normalizer *Normalizer, repo PostRepository, source MessageSource, logger *slog.Logger) *Ingester {
	allowed := make(map[int64]struct{}, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = struct{}{}
	}

	maxElapsed := cfg.MaxUpsertElapsed
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}

	return &Ingester{
		allowed:       allowed,
		normalizer:    normalizer,
		repo:          repo,
		source:        source,
		maxElapsed:    maxElapsed,
		retryInterval: cfg.RetryInitialInterval,
		logger:        logger,
	}
}

// Watching reports whether a chat is on the allow-list.
func (g *Ingester) Watching(chatID int64) bool {
	_, ok := g.allowed[chatID]
	return ok
}

// HandleEvent runs one message through the pipeline. It reports whether a
// post was stored. Dropped messages (unwatched chat, missing fields, no
// links) produce no side effects and no error.
func (g *Ingester) HandleEvent(ctx context.Context, event MessageEvent) (bool, error) {
	if !g.Watching(event.ChatID) {
		return false, nil
	}

	if !event.SourceID().Valid() || event.Text == "" {
		g.logger.Debug("discarding malformed message",
			"chat_id", event.ChatID,
			"message_id", event.MessageID,
		)
		return false, nil
	}

	post, ok := g.normalizer.Normalize(event)
	if !ok {
		g.logger.Debug("message has no links, not a post", "source_id", event.SourceID())
		return false, nil
	}

	if err := g.upsertWithRetry(ctx, post); err != nil {
		return false, fmt.Errorf("store post %s: %w", post.SourceID, err)
	}
	return true, nil
}

// upsertWithRetry retries transient storage failures with exponential
// backoff. Malformed-key and other non-transient errors fail immediately.
func (g *Ingester) upsertWithRetry(ctx context.Context, post *Post) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = g.maxElapsed
	if g.retryInterval > 0 {
		policy.InitialInterval = g.retryInterval
	}

	op := func() error {
		err := g.repo.Upsert(ctx, post)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrStorageUnavailable) {
			g.logger.Warn("storage unavailable, retrying upsert", "source_id", post.SourceID, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

// Backfill ingests a chat's history oldest-to-newest, resuming just after
// the highest message id already stored for that chat. Within one chat this
// preserves ascending message-id order. A storage failure aborts the run
// with an error; the next run recomputes the resume point from stored state,
// so interrupted backfills continue where their stored progress ends.
func (g *Ingester) Backfill(ctx context.Context, chatID int64) (int, error) {
	if !g.Watching(chatID) {
		return 0, fmt.Errorf("chat %d is not on the allow-list", chatID)
	}

	resume, err := g.repo.MaxMessageID(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("resolve resume point: %w", err)
	}
	g.logger.Info("starting backfill", "chat_id", chatID, "after_message_id", resume)

	stored := 0
	for {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		events, err := g.source.FetchHistory(ctx, chatID, resume, historyPageSize)
		if err != nil {
			return stored, fmt.Errorf("fetch history after %d: %w", resume, err)
		}
		if len(events) == 0 {
			g.logger.Info("backfill complete", "chat_id", chatID, "posts_stored", stored)
			return stored, nil
		}

		for _, event := range events {
			if event.MessageID <= resume {
				// Source returned an overlapping page; already processed.
				continue
			}

			saved, err := g.HandleEvent(ctx, event)
			if err != nil {
				return stored, err
			}
			if saved {
				stored++
			}
			resume = event.MessageID
		}
	}
}
