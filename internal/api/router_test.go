package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/api/handler"
	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/config"
	"github.com/vammperp/backend/internal/pkg/errors"
	"github.com/vammperp/backend/internal/pkg/jwt"
	"github.com/vammperp/backend/internal/pkg/metrics"
	"github.com/vammperp/backend/internal/service"
	"github.com/vammperp/backend/internal/ws"
)

// newTestRouter wires the router without Postgres or Redis: health degrades,
// rate limits fall back to local buckets and wallet login is off.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng := engine.New(engine.DefaultPolicy())
	_, err := eng.Apply(context.Background(), engine.InitializeMarket{
		Market:                 "ETH-PERP",
		Authority:              common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Pricing:                engine.PricingConstantProduct,
		BaseReserve:            1_000_000_000_000,
		QuoteReserve:           1_000_000_000_000,
		FundingInterval:        3600,
		MaintenanceMarginRatio: 500,
		InitialMarginRatio:     1000,
		MaxLeverage:            10,
		LiquidationFeeRatio:    500,
		TradingFeeRatio:        10,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{PublicLimit: 100, PrivateLimit: 100, OrderLimit: 100},
		Metrics:   config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Security:  config.SecurityConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
	logger := zap.NewNop()
	m := metrics.New()
	jwtManager := jwt.NewManager(strings.Repeat("s", 32), time.Hour)

	r, err := NewRouter(Deps{
		Config:   cfg,
		Engine:   service.NewEngineService(eng, nil, nil, m, logger),
		Markets:  service.NewMarketService(eng, nil, nil, nil, nil, nil),
		Accounts: service.NewAccountService(eng, nil, nil, nil, nil),
		Risk:     service.NewLiquidationService(eng),
		JWT:      jwtManager,
		Hub:      ws.NewHub(jwtManager, m, logger),
		Metrics:  m,
		Logger:   logger,
	})
	require.NoError(t, err)
	return r
}

func TestRouter(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   int
	}{
		{"liveness", http.MethodGet, "/health", http.StatusOK, 0},
		{"public markets", http.MethodGet, "/api/v1/public/markets", http.StatusOK, 0},
		{"server time", http.MethodGet, "/api/v1/public/time", http.StatusOK, 0},
		{"unknown market", http.MethodGet, "/api/v1/public/market?instId=BTC-PERP", http.StatusNotFound, errors.CodeMarketNotFound},
		{"private without key", http.MethodGet, "/api/v1/account/balance", http.StatusUnauthorized, errors.CodeInvalidAPIKey},
		{"trade without key", http.MethodPost, "/api/v1/trade/open-position", http.StatusUnauthorized, errors.CodeInvalidAPIKey},
		{"admin without key", http.MethodPost, "/api/v1/admin/pause", http.StatusUnauthorized, errors.CodeInvalidAPIKey},
		{"login disabled without redis", http.MethodPost, "/api/v1/auth/nonce", http.StatusNotFound, 0},
		{"faucet disabled", http.MethodPost, "/api/v1/admin/faucet", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantCode != 0 {
				var body struct {
					Code int `json:"code"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Code)
			}
		})
	}
}

func TestAggregatedHealthWithoutDatabase(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/all", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp handler.AggregatedHealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "down", resp.Services["database"].Status)
	assert.Equal(t, "degraded", resp.Services["redis"].Status)
	// No oracle yet, so the mark price of ETH-PERP is unusable.
	assert.Equal(t, "degraded", resp.Services["engine"].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
