package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// BaseURL is the public URL this service is reachable at, used to build
	// web view links in search responses.
	BaseURL string

	// MongoURI is the MongoDB connection string.
	MongoURI string

	// MongoDatabase is the database name holding the post collection.
	MongoDatabase string

	// SourceStreamURL is the websocket endpoint of the source bridge's live
	// event stream.
	SourceStreamURL string

	// SourceAPIURL is the HTTP endpoint of the source bridge's pull API.
	SourceAPIURL string

	// SelfDomain is the transport's own domain. Links pointing back into it
	// are never stored as content links.
	SelfDomain string

	// MonitoredChats is the allow-list of chat ids to ingest from.
	MonitoredChats []int64

	// SearchBudget bounds how long one search may run.
	SearchBudget time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables with sensible
// defaults. MONITORED_CHATS is required.
func Load() (*Config, error) {
	port := 8000
	if p := os.Getenv("PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
	}

	chats, err := parseChatList(os.Getenv("MONITORED_CHATS"))
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, fmt.Errorf("MONITORED_CHATS is required")
	}

	searchBudget := 5 * time.Second
	if b := os.Getenv("SEARCH_BUDGET"); b != "" {
		searchBudget, err = time.ParseDuration(b)
		if err != nil {
			return nil, fmt.Errorf("invalid SEARCH_BUDGET: %w", err)
		}
	}

	return &Config{
		Port:            port,
		BaseURL:         getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("DB_NAME", "channel_index"),
		SourceStreamURL: getEnv("SOURCE_STREAM_URL", "ws://localhost:8081/stream"),
		SourceAPIURL:    getEnv("SOURCE_API_URL", "http://localhost:8081"),
		SelfDomain:      getEnv("SOURCE_SELF_DOMAIN", "t.me"),
		MonitoredChats:  chats,
		SearchBudget:    searchBudget,
		LogFile:         os.Getenv("LOG_FILE"),
		LogLevel:        parseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}, nil
}

// parseChatList parses a comma-separated list of chat ids.
func parseChatList(raw string) ([]int64, error) {
	var chats []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q in MONITORED_CHATS: %w", part, err)
		}
		chats = append(chats, id)
	}
	return chats, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
