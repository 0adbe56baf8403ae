package domain

import (
	"context"
	"strings"
	"sync"
)

// fakeRepo is an in-memory PostRepository for coordinator and ranker tests.
type fakeRepo struct {
	mu    sync.Mutex
	posts map[SourceID]Post

	// failUpserts makes the next n Upsert calls return failErr.
	failUpserts int
	failErr     error
	upsertCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{posts: make(map[SourceID]Post)}
}

func (r *fakeRepo) Upsert(_ context.Context, post *Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.upsertCalls++
	if r.failUpserts > 0 {
		r.failUpserts--
		return r.failErr
	}
	if !post.SourceID.Valid() {
		return ErrMalformedKey
	}
	r.posts[post.SourceID] = *post
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id SourceID) (*Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	return &post, nil
}

func (r *fakeRepo) FindMatching(_ context.Context, tokens []string) ([]Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Post
	for _, post := range r.posts {
		title := strings.ToLower(post.Title)
		body := strings.ToLower(post.RawText)
		for _, tok := range tokens {
			if strings.Contains(title, tok) || strings.Contains(body, tok) {
				out = append(out, post)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) MaxMessageID(_ context.Context, chatID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var maxID int64
	for id := range r.posts {
		if id.ChatID == chatID && id.MessageID > maxID {
			maxID = id.MessageID
		}
	}
	return maxID, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posts)
}

// fakeSource serves a fixed, ascending message history.
type fakeSource struct {
	events []MessageEvent
}

func (s *fakeSource) FetchHistory(_ context.Context, chatID, afterMessageID int64, limit int) ([]MessageEvent, error) {
	var out []MessageEvent
	for _, e := range s.events {
		if e.ChatID != chatID || e.MessageID <= afterMessageID {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
