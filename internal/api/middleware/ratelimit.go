package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/vammperp/backend/internal/api/response"
	"github.com/vammperp/backend/internal/pkg/database"
	"github.com/vammperp/backend/internal/pkg/errors"
)

// Limit classes
const (
	LimitPublic  = "public"
	LimitPrivate = "private"
	LimitOrder   = "order"
)

// RateLimiter counts requests per minute in Redis so limits hold across API
// instances. Without Redis it falls back to in-process token buckets.
type RateLimiter struct {
	cache        *database.Cache
	publicLimit  int
	privateLimit int
	orderLimit   int
	window       time.Duration
	local        *lru.Cache[string, *rate.Limiter]
	now          func() time.Time
}

func NewRateLimiter(cache *database.Cache, publicLimit, privateLimit, orderLimit int) *RateLimiter {
	local, _ := lru.New[string, *rate.Limiter](10_000)
	return &RateLimiter{
		cache:        cache,
		publicLimit:  publicLimit,
		privateLimit: privateLimit,
		orderLimit:   orderLimit,
		window:       time.Minute,
		local:        local,
		now:          time.Now,
	}
}

func (rl *RateLimiter) limitFor(limitType string) int {
	switch limitType {
	case LimitPrivate:
		return rl.privateLimit
	case LimitOrder:
		return rl.orderLimit
	default:
		return rl.publicLimit
	}
}

// RateLimitMiddleware limits request rate per client IP and, once
// authenticated, per user. The IP allowance is twice the user limit so
// several users behind one NAT still get through.
func (rl *RateLimiter) RateLimitMiddleware(limitType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := rl.limitFor(limitType)
		if limit <= 0 {
			c.Next()
			return
		}

		ipKey := fmt.Sprintf("%sip:%s:%s", database.KeyRateLimit, c.ClientIP(), limitType)
		ipLimit := limit
		userID, authed := GetUserID(c)
		if authed {
			ipLimit = limit * 2
		}
		if !rl.allow(c, ipKey, ipLimit) {
			rl.reject(c, "rate limit exceeded (IP)")
			return
		}

		if authed {
			userKey := fmt.Sprintf("%suser:%d:%s", database.KeyRateLimit, userID, limitType)
			if !rl.allow(c, userKey, limit) {
				rl.reject(c, "rate limit exceeded (user)")
				return
			}
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", rl.now().Add(rl.window).Unix()))
		c.Next()
	}
}

func (rl *RateLimiter) allow(c *gin.Context, key string, limit int) bool {
	if rl.cache.IsAvailable() {
		count, err := rl.cache.IncrementRateLimit(c.Request.Context(), key, rl.window)
		if err == nil {
			return int(count) <= limit
		}
	}
	return rl.localLimiter(key, limit).Allow()
}

func (rl *RateLimiter) localLimiter(key string, limit int) *rate.Limiter {
	if l, ok := rl.local.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(rl.window/time.Duration(limit)), limit)
	rl.local.Add(key, l)
	return l
}

func (rl *RateLimiter) reject(c *gin.Context, msg string) {
	c.Header("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Response{
		Code: errors.CodeRateLimitExceed,
		Msg:  msg,
	})
}
