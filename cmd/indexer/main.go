package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/indexer"
	"github.com/vammperp/backend/internal/pkg/config"
	"github.com/vammperp/backend/internal/pkg/database"
	applog "github.com/vammperp/backend/internal/pkg/logger"
	"github.com/vammperp/backend/internal/repository"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := applog.New(cfg.Log, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Redis only speeds up pickup; the indexer polls without it
	redisClient, err := database.NewRedis(cfg.Redis)
	if err != nil {
		logger.Warn("Redis not available, polling only", zap.Error(err))
		redisClient = nil
	}
	cache := database.NewCache(redisClient)

	markets, err := repository.NewMarketRepository(db).GetAll()
	if err != nil {
		logger.Fatal("Failed to list markets", zap.Error(err))
	}
	symbols := make([]string, 0, len(markets))
	for _, mk := range markets {
		symbols = append(symbols, mk.Symbol)
	}

	idx, candles := indexer.NewPostgresIndexer(db, cache, cfg.Indexer, nil, logger)
	candles.Start(ctx, symbols)

	logger.Info("Indexer started", zap.Int("markets", len(symbols)))
	if err := idx.Run(ctx); err != nil {
		logger.Error("Indexer error", zap.Error(err))
	}
	logger.Info("Indexer stopped")
}
