package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"channel-index/internal/config"
	"channel-index/internal/domain"
	"channel-index/internal/mongo"
	"channel-index/internal/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var chatID int64
	flag.Int64Var(&chatID, "chat", 0, "Backfill a single chat id (default: every monitored chat)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := cfg.SetupLogger()
	defer closeLog()

	// Interrupting a run is safe: the next run resumes from stored state.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	repo, err := mongo.NewRepository(connectCtx, cfg.MongoURI, cfg.MongoDatabase, logger)
	connectCancel()
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		_ = repo.Close(closeCtx)
	}()

	normalizer := domain.NewNormalizer(domain.NewExtractor(cfg.SelfDomain))
	source := stream.NewClient(cfg.SourceAPIURL)
	ingester := domain.NewIngester(domain.IngesterConfig{
		AllowedChats: cfg.MonitoredChats,
	}, normalizer, repo, source, logger)

	chats := cfg.MonitoredChats
	if chatID != 0 {
		chats = []int64{chatID}
	}

	for _, chat := range chats {
		fmt.Printf("Backfilling chat %d...\n", chat)
		stored, err := ingester.Backfill(ctx, chat)
		if err != nil {
			return fmt.Errorf("backfill chat %d (stored %d posts): %w", chat, stored, err)
		}
		fmt.Printf("Chat %d done: %d posts stored\n", chat, stored)
	}

	return nil
}
