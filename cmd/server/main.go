package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"channel-index/internal/config"
	"channel-index/internal/domain"
	"channel-index/internal/httpserver"
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
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := cfg.SetupLogger()
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	repo, err := mongo.NewRepository(connectCtx, cfg.MongoURI, cfg.MongoDatabase, logger)
	connectCancel()
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := repo.Close(closeCtx); err != nil {
			logger.Error("error closing repository", "error", err)
		}
	}()
	logger.Info("connected to database", "database", cfg.MongoDatabase)

	normalizer := domain.NewNormalizer(domain.NewExtractor(cfg.SelfDomain))
	source := stream.NewClient(cfg.SourceAPIURL)
	ingester := domain.NewIngester(domain.IngesterConfig{
		AllowedChats: cfg.MonitoredChats,
	}, normalizer, repo, source, logger)
	searcher := domain.NewSearcher(repo, cfg.SearchBudget)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Live event ingestion in the background.
	subscriber := stream.NewSubscriber(cfg.SourceStreamURL, ingester, logger)
	go func() {
		if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("source subscriber exited with error", "error", err)
		}
	}()

	server := httpserver.NewServer(cfg, searcher, repo, repo, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started",
		"port", cfg.Port,
		"monitored_chats", len(cfg.MonitoredChats),
	)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
