package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vammperp/backend/internal/api"
	"github.com/vammperp/backend/internal/custody"
	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/indexer"
	"github.com/vammperp/backend/internal/keeper"
	"github.com/vammperp/backend/internal/pkg/config"
	"github.com/vammperp/backend/internal/pkg/database"
	"github.com/vammperp/backend/internal/pkg/jwt"
	applog "github.com/vammperp/backend/internal/pkg/logger"
	"github.com/vammperp/backend/internal/pkg/metrics"
	"github.com/vammperp/backend/internal/pkg/nonce"
	"github.com/vammperp/backend/internal/repository"
	"github.com/vammperp/backend/internal/service"
	"github.com/vammperp/backend/internal/ws"
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

	// Connect to Redis (optional for development)
	redisClient, err := database.NewRedis(cfg.Redis)
	if err != nil {
		logger.Warn("Redis not available, running without cache and wallet login", zap.Error(err))
		redisClient = nil
	}
	cache := database.NewCache(redisClient)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	jwtManager := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	hub := ws.NewHub(jwtManager, m, logger)

	eng := engine.New(engine.Policy{
		MaxOracleStaleness: cfg.Engine.MaxOracleStaleness,
		MaxConfidenceBps:   cfg.Engine.MaxConfidenceBps,
		MaxFundingRate:     cfg.Engine.MaxFundingRate,
		MinDeposit:         cfg.Engine.MinDeposit,
		MinWithdrawal:      cfg.Engine.MinWithdrawal,
	})
	ledger := custody.NewLedger(logger)
	engineService := service.NewEngineService(eng, repository.NewStore(db), ledger, m, logger,
		service.NewRedisPublisher(cache, logger))
	engineService.AddPublisher(hub)
	if err := engineService.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore engine state", zap.Error(err))
	}
	if err := ledger.RestoreVaults(eng); err != nil {
		logger.Fatal("Failed to restore custody vaults", zap.Error(err))
	}

	tradeRepo := repository.NewTradeRepository(db)
	liquidationRepo := repository.NewLiquidationRepository(db)
	markets := service.NewMarketService(eng, tradeRepo, repository.NewCandleRepository(db),
		repository.NewFundingRateRepository(db), liquidationRepo, cache)
	accounts := service.NewAccountService(eng, repository.NewPositionRepository(db),
		repository.NewOrderRepository(db), tradeRepo, liquidationRepo)
	risk := service.NewLiquidationService(eng)

	var nonces *nonce.Manager
	if redisClient != nil {
		nonces = nonce.NewManager(redisClient, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	keepers := keeper.NewManager(logger)
	if cfg.Keeper.Enabled {
		operator := common.HexToAddress(cfg.Keeper.Address)
		price := keeper.NewPriceKeeper(engineService, eng, markets, risk, cache, cfg.Keeper.PriceInterval, m, logger).
			WithNotifier(hub)
		if cfg.Keeper.PriceFeedURL != "" {
			price = price.WithFeed(keeper.NewPriceFeed(cfg.Keeper.PriceFeedURL), common.HexToAddress(cfg.Keeper.OracleAuthority))
		}
		keepers.Add(price)
		keepers.Add(keeper.NewLiquidationKeeper(engineService, eng, operator, cfg.Keeper.LiquidationInterval, m, logger))
		keepers.Add(keeper.NewOrderKeeper(engineService, eng, operator, cfg.Keeper.OrderInterval, m, logger))
		keepers.Add(keeper.NewFundingKeeper(engineService, eng, cfg.Keeper.FundingInterval, m, logger))
		g.Go(func() error {
			return keepers.Run(gctx)
		})
	}

	if cfg.Indexer.Embedded {
		idx, candles := indexer.NewPostgresIndexer(db, cache, cfg.Indexer, m, logger)
		candles.Start(gctx, eng.Symbols())
		g.Go(func() error {
			return idx.Run(gctx)
		})
	}

	router, err := api.NewRouter(api.Deps{
		Config:   cfg,
		DB:       db,
		Cache:    cache,
		Engine:   engineService,
		Markets:  markets,
		Accounts: accounts,
		Risk:     risk,
		Users:    repository.NewUserRepository(db),
		Nonces:   nonces,
		JWT:      jwtManager,
		Hub:      hub,
		Faucet:   ledger,
		Keepers:  keepers,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info("API Server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited")
}
