package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/database"
)

type stubUsers struct {
	users   map[string]*model.User
	lookups int
}

func (s *stubUsers) GetByAPIKey(apiKey string) (*model.User, error) {
	s.lookups++
	u, ok := s.users[apiKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

var testUser = &model.User{
	ID:        7,
	Address:   "0x00000000000000000000000000000000000000B1",
	APIKey:    "key-1",
	APISecret: "secret-1",
}

func newAuthRouter(a *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(a.Middleware())
	r.POST("/api/v1/trade/order", func(c *gin.Context) {
		addr, _ := GetAddress(c)
		id, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "userId": id})
	})
	return r
}

func signedRequest(key, secret string, ts int64, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trade/order?dry=1", strings.NewReader(body))
	stamp := strconv.FormatInt(ts, 10)
	req.Header.Set(HeaderAPIKey, key)
	req.Header.Set(HeaderTimestamp, stamp)
	req.Header.Set(HeaderSignature, Sign(secret, stamp, http.MethodPost, "/api/v1/trade/order?dry=1", []byte(body)))
	return req
}

func TestAuthMiddleware(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	users := &stubUsers{users: map[string]*model.User{testUser.APIKey: testUser}}
	a := NewAuthenticator(users, 16, time.Minute)
	a.now = func() time.Time { return now }
	r := newAuthRouter(a)

	tests := []struct {
		name       string
		req        func() *http.Request
		wantStatus int
	}{
		{
			name:       "valid signature",
			req:        func() *http.Request { return signedRequest("key-1", "secret-1", now.UnixMilli(), `{"side":"long"}`) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong secret",
			req:        func() *http.Request { return signedRequest("key-1", "secret-2", now.UnixMilli(), `{}`) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown key",
			req:        func() *http.Request { return signedRequest("key-9", "secret-1", now.UnixMilli(), `{}`) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired timestamp",
			req: func() *http.Request {
				return signedRequest("key-1", "secret-1", now.Add(-10*time.Minute).UnixMilli(), `{}`)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "tampered body",
			req: func() *http.Request {
				req := signedRequest("key-1", "secret-1", now.UnixMilli(), `{"size":1}`)
				req.Body = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"size":2}`)).Body
				return req
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "missing headers",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/v1/trade/order", nil)
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, tt.req())
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestAuthMiddlewareSetsCaller(t *testing.T) {
	now := time.Now()
	users := &stubUsers{users: map[string]*model.User{testUser.APIKey: testUser}}
	a := NewAuthenticator(users, 16, time.Minute)
	r := newAuthRouter(a)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest("key-1", "secret-1", now.UnixMilli(), `{}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), common.HexToAddress(testUser.Address).Hex())
	assert.Contains(t, w.Body.String(), `"userId":7`)

	// Cached after the first lookup
	w = httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest("key-1", "secret-1", now.UnixMilli(), `{}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, users.lookups)

	a.Invalidate("key-1")
	delete(users.users, "key-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest("key-1", "secret-1", now.UnixMilli(), `{}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitLocalFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(database.NewCache(nil), 3, 3, 3)
	r := gin.New()
	r.GET("/", rl.RateLimitMiddleware(LimitPublic), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 200, 429}, codes)

	// Other clients have their own bucket
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantHeader string
	}{
		{"allowed preflight", http.MethodOptions, "https://app.example", http.StatusNoContent, "https://app.example"},
		{"refused preflight", http.MethodOptions, "https://evil.example", http.StatusForbidden, ""},
		{"allowed request", http.MethodGet, "https://app.example", http.StatusOK, "https://app.example"},
		{"other origin request", http.MethodGet, "https://evil.example", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantHeader, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestLoggerMiddlewareRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggerMiddleware(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(HeaderRequestID)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "client-id-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, "client-id-1", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 100))
	r.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}
