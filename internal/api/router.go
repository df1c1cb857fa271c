package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vammperp/backend/internal/api/handler"
	"github.com/vammperp/backend/internal/api/middleware"
	"github.com/vammperp/backend/internal/pkg/config"
	"github.com/vammperp/backend/internal/pkg/database"
	"github.com/vammperp/backend/internal/pkg/jwt"
	"github.com/vammperp/backend/internal/pkg/metrics"
	"github.com/vammperp/backend/internal/pkg/nonce"
	"github.com/vammperp/backend/internal/repository"
	"github.com/vammperp/backend/internal/service"
	"github.com/vammperp/backend/internal/ws"
)

const apiKeyCacheTTL = 30 * time.Second

// Deps are the collaborators the HTTP layer is built from. Nonces may be nil
// when Redis is absent; wallet login is then unavailable.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Cache    *database.Cache
	Engine   *service.EngineService
	Markets  *service.MarketService
	Accounts *service.AccountService
	Risk     *service.LiquidationService
	Users    *repository.UserRepository
	Nonces   *nonce.Manager
	JWT      *jwt.Manager
	Hub      *ws.Hub
	Faucet   handler.Minter
	Keepers  handler.KeeperStats
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Router struct {
	engine        *gin.Engine
	deps          Deps
	rateLimiter   *middleware.RateLimiter
	authenticator *middleware.Authenticator
}

func NewRouter(d Deps) (*gin.Engine, error) {
	if d.Config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(d.Config.Security.TrustedProxies); err != nil {
		return nil, err
	}

	r := &Router{
		engine:        engine,
		deps:          d,
		rateLimiter:   middleware.NewRateLimiter(d.Cache, d.Config.RateLimit.PublicLimit, d.Config.RateLimit.PrivateLimit, d.Config.RateLimit.OrderLimit),
		authenticator: middleware.NewAuthenticator(d.Users, 0, apiKeyCacheTTL),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return engine, nil
}

func (r *Router) setupMiddleware() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.CORSMiddleware(r.deps.Config.Security.AllowedOrigins))
	r.engine.Use(middleware.LoggerMiddleware(r.deps.Logger))
}

// private returns a group behind API key auth. Auth runs first so the rate
// limiter can count per user.
func (r *Router) private(parent *gin.RouterGroup, path, limit string) *gin.RouterGroup {
	g := parent.Group(path)
	g.Use(r.authenticator.Middleware())
	g.Use(r.rateLimiter.RateLimitMiddleware(limit))
	return g
}

func (r *Router) setupRoutes() {
	d := r.deps

	marketHandler := handler.NewMarketHandler(d.Markets)
	accountHandler := handler.NewAccountHandler(d.Accounts, d.Risk)
	tradeHandler := handler.NewTradeHandler(d.Engine)
	adminHandler := handler.NewAdminHandler(d.Engine)
	wsHandler := handler.NewWebSocketHandler(d.Hub, d.Config.Security.AllowedOrigins, d.Logger)
	healthHandler := handler.NewHealthHandler(d.DB, d.Cache, d.Engine.Engine(), d.Keepers, d.Hub)

	// WebSocket endpoints
	r.engine.GET("/ws/public", wsHandler.HandlePublicWS)
	r.engine.GET("/ws/private", wsHandler.HandlePrivateWS)

	v1 := r.engine.Group("/api/v1")

	// Auth endpoints (no authentication required)
	if d.Nonces != nil {
		authHandler := handler.NewAuthHandler(d.Users, d.Nonces, r.authenticator, d.JWT, d.Logger)
		auth := v1.Group("/auth")
		auth.Use(r.rateLimiter.RateLimitMiddleware(middleware.LimitPublic))
		{
			auth.POST("/nonce", authHandler.GetNonce)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}
	}

	public := v1.Group("/public")
	public.Use(r.rateLimiter.RateLimitMiddleware(middleware.LimitPublic))
	{
		public.GET("/markets", marketHandler.GetMarkets)
		public.GET("/market", marketHandler.GetMarket)
		public.GET("/oracle", marketHandler.GetOracle)
		public.GET("/time", marketHandler.GetServerTime)
	}

	market := v1.Group("/market")
	market.Use(r.rateLimiter.RateLimitMiddleware(middleware.LimitPublic))
	{
		market.GET("/ticker", marketHandler.GetTicker)
		market.GET("/tickers", marketHandler.GetTickers)
		market.GET("/candles", marketHandler.GetCandles)
		market.GET("/trades", marketHandler.GetTrades)
		market.GET("/mark-price", marketHandler.GetMarkPrice)
		market.GET("/funding-rate", marketHandler.GetFundingRate)
		market.GET("/funding-rate-history", marketHandler.GetFundingRateHistory)
		market.GET("/liquidations", marketHandler.GetRecentLiquidations)
	}

	var faucetHandler *handler.FaucetHandler
	if d.Faucet != nil && d.Config.Faucet.Authority != "" {
		faucetHandler = handler.NewFaucetHandler(d.Faucet, common.HexToAddress(d.Config.Faucet.Authority), d.Config.Faucet.MaxAmount)
	}

	account := r.private(v1, "/account", middleware.LimitPrivate)
	{
		account.GET("/balance", accountHandler.GetAccounts)
		account.GET("/positions", accountHandler.GetPositions)
		account.GET("/position", accountHandler.GetPosition)
		account.GET("/positions-history", accountHandler.GetPositionHistory)
		account.GET("/liquidation-risk", accountHandler.GetLiquidationRisk)
		account.GET("/liquidations", accountHandler.GetLiquidationHistory)
		account.POST("/create", tradeHandler.CreateAccount)
		account.POST("/deposit", tradeHandler.Deposit)
		account.POST("/withdraw", tradeHandler.Withdraw)
		account.POST("/position/margin-balance", tradeHandler.AdjustMargin)
		if faucetHandler != nil {
			account.GET("/wallet", faucetHandler.GetBalance)
		}
	}

	trade := r.private(v1, "/trade", middleware.LimitOrder)
	{
		trade.GET("/order", accountHandler.GetOrder)
		trade.GET("/orders-pending", accountHandler.GetPendingOrders)
		trade.GET("/orders-history", accountHandler.GetOrderHistory)
		trade.GET("/fills", accountHandler.GetTradeHistory)
		trade.POST("/open-position", tradeHandler.OpenPosition)
		trade.POST("/close-position", tradeHandler.ClosePosition)
		trade.POST("/order", tradeHandler.PlaceOrder)
		trade.POST("/cancel-order", tradeHandler.CancelOrder)
		trade.POST("/liquidate", tradeHandler.Liquidate)
	}

	admin := r.private(v1, "/admin", middleware.LimitPrivate)
	{
		admin.POST("/market", adminHandler.InitMarket)
		admin.POST("/pause", adminHandler.PauseMarket)
		admin.POST("/resume", adminHandler.ResumeMarket)
		admin.POST("/params", adminHandler.UpdateParams)
		admin.POST("/funding-rate", adminHandler.UpdateFundingRate)
		admin.POST("/settle-funding", adminHandler.SettleFunding)
		admin.POST("/oracle", adminHandler.InitOracle)
		admin.POST("/oracle-price", adminHandler.UpdateOraclePrice)
		if faucetHandler != nil {
			admin.POST("/faucet", faucetHandler.Mint)
		}
	}

	// Health check endpoints
	r.engine.GET("/health", healthHandler.GetHealth)
	r.engine.GET("/health/all", healthHandler.GetAggregatedHealth)

	if d.Config.Metrics.Enabled && d.Metrics != nil {
		r.engine.GET(d.Config.Metrics.Path, gin.WrapH(d.Metrics.Handler()))
	}
}
