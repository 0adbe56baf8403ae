package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"channel-index/internal/config"
	"channel-index/internal/domain"
)

const defaultSearchLimit = 10

// Pinger verifies storage reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the search and post lookup API.
type Server struct {
	cfg        *config.Config
	searcher   *domain.Searcher
	repo       domain.PostRepository
	pinger     Pinger
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server for the given searcher and repository.
func NewServer(cfg *config.Config, searcher *domain.Searcher, repo domain.PostRepository, pinger Pinger, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		searcher: searcher,
		repo:     repo,
		pinger:   pinger,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /posts/{chatID}/{messageID}", s.handleGetPost)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type linkResponse struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

type postResponse struct {
	ChatID    int64          `json:"chat_id"`
	MessageID int64          `json:"message_id"`
	Title     string         `json:"title"`
	ChatTitle string         `json:"chat_title"`
	Timestamp time.Time      `json:"timestamp"`
	Links     []linkResponse `json:"links"`
	WebURL    string         `json:"web_url"`
}

type searchResult struct {
	Post  postResponse `json:"post"`
	Score int          `json:"score"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := defaultSearchLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > domain.MaxSearchLimit {
			writeError(w, http.StatusBadRequest, "InvalidRequest",
				fmt.Sprintf("limit must be between 1 and %d", domain.MaxSearchLimit))
			return
		}
		limit = parsed
	}

	results, err := s.searcher.Search(r.Context(), query, limit)
	switch {
	case errors.Is(err, domain.ErrQueryTooShort):
		writeError(w, http.StatusBadRequest, "QueryTooShort", "enter at least 3 characters")
		return
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, context.DeadlineExceeded):
		s.logger.Error("search unavailable", "query", query, "error", err)
		writeError(w, http.StatusServiceUnavailable, "TryAgain", "search is temporarily unavailable, try again")
		return
	case err != nil:
		s.logger.Error("search failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "search failed")
		return
	}

	payload := make([]searchResult, len(results))
	for i, res := range results {
		payload[i] = searchResult{
			Post:  s.toPostResponse(&res.Post),
			Score: res.Score,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": payload})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	chatID, err1 := strconv.ParseInt(r.PathValue("chatID"), 10, 64)
	messageID, err2 := strconv.ParseInt(r.PathValue("messageID"), 10, 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "post id must be numeric chat and message ids")
		return
	}

	post, err := s.repo.GetByID(r.Context(), domain.SourceID{ChatID: chatID, MessageID: messageID})
	if err != nil {
		s.logger.Error("failed to get post", "chat_id", chatID, "message_id", messageID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "TryAgain", "lookup is temporarily unavailable, try again")
		return
	}
	if post == nil {
		writeError(w, http.StatusNotFound, "NotFound", "no such post")
		return
	}

	writeJSON(w, http.StatusOK, s.toPostResponse(post))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "storage unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// toPostResponse renders a post for callers: links carry the display label
// only, never the internal quality code.
func (s *Server) toPostResponse(post *domain.Post) postResponse {
	links := make([]linkResponse, len(post.Links))
	for i, l := range post.Links {
		links[i] = linkResponse{URL: l.URL, Label: l.Label}
	}

	return postResponse{
		ChatID:    post.SourceID.ChatID,
		MessageID: post.SourceID.MessageID,
		Title:     post.Title,
		ChatTitle: post.ChatTitle,
		Timestamp: post.Timestamp,
		Links:     links,
		WebURL:    fmt.Sprintf("%s/posts/%d/%d", s.cfg.BaseURL, post.SourceID.ChatID, post.SourceID.MessageID),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
