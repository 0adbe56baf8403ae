package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"channel-index/internal/domain"
)

const statsLogInterval = 30 * time.Second

// Subscriber consumes live message events from the source bridge over a
// websocket and feeds them to the ingester.
type Subscriber struct {
	url      string
	ingester *domain.Ingester
	logger   *slog.Logger
}

// NewSubscriber creates a live event subscriber.
func NewSubscriber(url string, ingester *domain.Ingester, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:      url,
		ingester: ingester,
		logger:   logger,
	}
}

// Start connects to the source and processes events until the context is
// cancelled, reconnecting with exponential backoff on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0
	policy.MaxInterval = 5 * time.Minute

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		connectedAt := time.Now()
		err := s.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that held for a while earns a fresh backoff window.
		if time.Since(connectedAt) > time.Minute {
			policy.Reset()
		}

		wait := policy.NextBackOff()
		s.logger.Error("source connection lost, reconnecting", "error", err, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial source: %w", err)
	}
	defer conn.Close()

	s.logger.Info("connected to message source", "url", s.url)

	// Unblock ReadMessage when shutdown is requested.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var eventsReceived, postsStored int64
	lastStatsLog := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}

		var raw messageEvent
		if err := json.Unmarshal(payload, &raw); err != nil {
			s.logger.Debug("unparsable event payload", "error", err)
			continue
		}

		event, ok := raw.toDomain()
		if !ok {
			s.logger.Debug("event missing required fields",
				"chat_id", raw.ChatID,
				"message_id", raw.MessageID,
			)
			continue
		}

		eventsReceived++

		// Graceful drain: the read loop above stops accepting new events on
		// shutdown, while a message already in flight runs to completion.
		stored, err := s.ingester.HandleEvent(context.WithoutCancel(ctx), event)
		if err != nil {
			s.logger.Error("failed to ingest message", "source_id", event.SourceID(), "error", err)
		} else if stored {
			postsStored++
		}

		if time.Since(lastStatsLog) >= statsLogInterval {
			s.logger.Info("source stream stats",
				"events_received", eventsReceived,
				"posts_stored", postsStored,
			)
			lastStatsLog = time.Now()
		}
	}
}
