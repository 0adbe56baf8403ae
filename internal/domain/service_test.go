package domain

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIngester(repo *fakeRepo, source MessageSource, chats ...int64) *Ingester {
	if len(chats) == 0 {
		chats = []int64{-100123}
	}
	return NewIngester(
		IngesterConfig{
			AllowedChats:         chats,
			MaxUpsertElapsed:     2 * time.Second,
			RetryInitialInterval: time.Millisecond,
		},
		NewNormalizer(NewExtractor("t.me")),
		repo,
		source,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestHandleEvent_StoresPost(t *testing.T) {
	repo := newFakeRepo()
	ing := testIngester(repo, &fakeSource{})

	stored, err := ing.HandleEvent(context.Background(), testEvent("Inception\n720p: http://host/a"))

	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, 1, repo.count())
}

func TestHandleEvent_DropsUnwatchedChat(t *testing.T) {
	repo := newFakeRepo()
	ing := testIngester(repo, &fakeSource{})

	event := testEvent("Inception\n720p: http://host/a")
	event.ChatID = -999

	stored, err := ing.HandleEvent(context.Background(), event)

	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, 0, repo.count())
}

func TestHandleEvent_DiscardsLinklessAndMalformed(t *testing.T) {
	repo := newFakeRepo()
	ing := testIngester(repo, &fakeSource{})

	linkless := testEvent("no links in this message")
	empty := testEvent("")
	noKey := testEvent("Title\nhttp://host/a")
	noKey.MessageID = 0

	for _, event := range []MessageEvent{linkless, empty, noKey} {
		stored, err := ing.HandleEvent(context.Background(), event)
		require.NoError(t, err)
		assert.False(t, stored)
	}
	assert.Equal(t, 0, repo.count())
}

func TestHandleEvent_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	ing := testIngester(repo, &fakeSource{})
	event := testEvent("Inception\n720p: http://host/a\n1080p: http://host/b")

	_, err := ing.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	first, err := repo.GetByID(context.Background(), event.SourceID())
	require.NoError(t, err)

	_, err = ing.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	second, err := repo.GetByID(context.Background(), event.SourceID())
	require.NoError(t, err)

	assert.Equal(t, 1, repo.count())
	assert.Equal(t, first, second)
}

func TestHandleEvent_EditReplacesAllFields(t *testing.T) {
	repo := newFakeRepo()
	ing := testIngester(repo, &fakeSource{})

	event := testEvent("Inception\n720p: http://host/a\n1080p: http://host/b")
	_, err := ing.HandleEvent(context.Background(), event)
	require.NoError(t, err)

	event.Text = "Inception\n720p: http://host/a"
	_, err = ing.HandleEvent(context.Background(), event)
	require.NoError(t, err)

	post, err := repo.GetByID(context.Background(), event.SourceID())
	require.NoError(t, err)
	require.NotNil(t, post)
	require.Len(t, post.Links, 1)
	assert.Equal(t, "http://host/a", post.Links[0].URL)
	assert.Equal(t, 1, repo.count())
}

func TestHandleEvent_RetriesTransientStorageErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.failUpserts = 2
	repo.failErr = fmt.Errorf("upsert post: %w", ErrStorageUnavailable)
	ing := testIngester(repo, &fakeSource{})

	stored, err := ing.HandleEvent(context.Background(), testEvent("Inception\n720p: http://host/a"))

	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, 3, repo.upsertCalls)
}

func TestHandleEvent_DoesNotRetryPermanentErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.failUpserts = 1
	repo.failErr = fmt.Errorf("upsert post: %w", ErrMalformedKey)
	ing := testIngester(repo, &fakeSource{})

	_, err := ing.HandleEvent(context.Background(), testEvent("Inception\n720p: http://host/a"))

	require.ErrorIs(t, err, ErrMalformedKey)
	assert.Equal(t, 1, repo.upsertCalls)
}

func backfillEvent(chatID, messageID int64, text string) MessageEvent {
	return MessageEvent{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(messageID) * time.Minute),
		ChatTitle: "Movies",
	}
}

func TestBackfill_ResumesAfterHighestStoredMessage(t *testing.T) {
	repo := newFakeRepo()
	source := &fakeSource{events: []MessageEvent{
		backfillEvent(-100123, 1, "One\nhttp://host/1"),
		backfillEvent(-100123, 2, "Two\nhttp://host/2"),
		backfillEvent(-100123, 3, "Three\nhttp://host/3"),
		backfillEvent(-100123, 4, "chatter without links"),
		backfillEvent(-100123, 5, "Five\nhttp://host/5"),
	}}
	ing := testIngester(repo, source)

	// Message 2 is already stored from a previous run.
	_, err := ing.HandleEvent(context.Background(), source.events[1])
	require.NoError(t, err)

	stored, err := ing.Backfill(context.Background(), -100123)

	require.NoError(t, err)
	assert.Equal(t, 2, stored) // messages 3 and 5; 4 has no links
	assert.Equal(t, 3, repo.count())

	one, err := repo.GetByID(context.Background(), SourceID{ChatID: -100123, MessageID: 1})
	require.NoError(t, err)
	assert.Nil(t, one, "messages before the resume point stay untouched")
}

func TestBackfill_SecondRunIsANoOp(t *testing.T) {
	repo := newFakeRepo()
	source := &fakeSource{events: []MessageEvent{
		backfillEvent(-100123, 1, "One\nhttp://host/1"),
		backfillEvent(-100123, 2, "Two\nhttp://host/2"),
	}}
	ing := testIngester(repo, source)

	stored, err := ing.Backfill(context.Background(), -100123)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	stored, err = ing.Backfill(context.Background(), -100123)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.Equal(t, 2, repo.count())
}

func TestBackfill_RejectsUnwatchedChat(t *testing.T) {
	ing := testIngester(newFakeRepo(), &fakeSource{})

	_, err := ing.Backfill(context.Background(), -999)

	require.Error(t, err)
}

func TestBackfill_AbortsOnStorageFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failUpserts = 100
	repo.failErr = fmt.Errorf("upsert post: %w", ErrStorageUnavailable)
	source := &fakeSource{events: []MessageEvent{
		backfillEvent(-100123, 1, "One\nhttp://host/1"),
	}}
	ing := testIngester(repo, source)

	stored, err := ing.Backfill(context.Background(), -100123)

	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, 0, stored)
}
