package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	minQueryRunes = 3

	// MaxSearchLimit caps how many results a single search may return.
	MaxSearchLimit = 50

	defaultSearchBudget = 5 * time.Second
)

// ScoredPost pairs a post with its search relevance score.
type ScoredPost struct {
	Post  Post
	Score int
}

// Searcher ranks keyword matches fetched from the repository. Scoring is
// term-frequency per query token; ties break on recency, then source id, so
// a fixed corpus and query always produce the same ordering.
type Searcher struct {
	repo   PostRepository
	budget time.Duration
}

// NewSearcher creates a searcher. budget bounds the time one search may
// spend against the repository; zero selects the default.
func NewSearcher(repo PostRepository, budget time.Duration) *Searcher {
	if budget <= 0 {
		budget = defaultSearchBudget
	}
	return &Searcher{repo: repo, budget: budget}
}

// Search returns up to limit posts matching the query, most relevant first.
// A trimmed query under three characters returns ErrQueryTooShort before
// storage is touched. An empty result is a valid outcome, not an error.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]ScoredPost, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minQueryRunes {
		return nil, ErrQueryTooShort
	}
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	tokens := Tokenize(query)

	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	candidates, err := s.repo.FindMatching(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("find matching posts: %w", err)
	}

	scored := make([]ScoredPost, 0, len(candidates))
	for i := range candidates {
		if score := scorePost(&candidates[i], tokens); score > 0 {
			scored = append(scored, ScoredPost{Post: candidates[i], Score: score})
		}
	}

	// Ranking sees the full candidate set; truncation happens only after.
	sort.Slice(scored, func(i, j int) bool {
		a, b := &scored[i], &scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Post.Timestamp.Equal(b.Post.Timestamp) {
			return a.Post.Timestamp.After(b.Post.Timestamp)
		}
		if a.Post.SourceID.ChatID != b.Post.SourceID.ChatID {
			return a.Post.SourceID.ChatID < b.Post.SourceID.ChatID
		}
		return a.Post.SourceID.MessageID < b.Post.SourceID.MessageID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Tokenize lowercases a query and splits it on whitespace.
func Tokenize(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// scorePost counts occurrences of each query token across title and body.
// The title is also the body's first line, so title matches weigh double.
func scorePost(post *Post, tokens []string) int {
	title := strings.ToLower(post.Title)
	body := strings.ToLower(post.RawText)

	score := 0
	for _, tok := range tokens {
		score += strings.Count(title, tok) + strings.Count(body, tok)
	}
	return score
}
