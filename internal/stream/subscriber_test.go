package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel-index/internal/domain"
)

type recordingRepo struct {
	mu    sync.Mutex
	posts map[domain.SourceID]domain.Post
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{posts: make(map[domain.SourceID]domain.Post)}
}

func (r *recordingRepo) Upsert(_ context.Context, post *domain.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[post.SourceID] = *post
	return nil
}

func (r *recordingRepo) GetByID(_ context.Context, id domain.SourceID) (*domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if post, ok := r.posts[id]; ok {
		return &post, nil
	}
	return nil, nil
}

func (r *recordingRepo) FindMatching(context.Context, []string) ([]domain.Post, error) {
	return nil, nil
}

func (r *recordingRepo) MaxMessageID(context.Context, int64) (int64, error) {
	return 0, nil
}

func (r *recordingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posts)
}

func TestSubscribe_IngestsLiveEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		payloads := []string{
			`{"chat_id": -100123, "message_id": 1, "text": "Inception\n720p: http://host/a", "date": "2025-06-01T12:00:00Z", "chat_title": "Movies"}`,
			`not json at all`,
			`{"chat_id": 0, "message_id": 2, "text": "keyless"}`,
			`{"chat_id": -999, "message_id": 3, "text": "Other\nhttp://host/b", "date": "2025-06-01T12:01:00Z"}`,
			`{"chat_id": -100123, "message_id": 4, "text": "Dune\n1080p: http://host/c", "date": "2025-06-01T12:02:00Z", "chat_title": "Movies"}`,
		}
		for _, p := range payloads {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(p)))
		}

		// Server-side close ends the subscription.
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	repo := newRecordingRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ingester := domain.NewIngester(
		domain.IngesterConfig{AllowedChats: []int64{-100123}},
		domain.NewNormalizer(domain.NewExtractor("t.me")),
		repo,
		nil,
		logger,
	)
	sub := NewSubscriber("ws"+strings.TrimPrefix(srv.URL, "http"), ingester, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := sub.subscribe(ctx)

	require.Error(t, err, "connection close surfaces as an error for the reconnect loop")
	assert.Equal(t, 2, repo.count())

	post, err := repo.GetByID(context.Background(), domain.SourceID{ChatID: -100123, MessageID: 1})
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "Inception", post.Title)
}
