package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"

	"github.com/vammperp/backend/internal/api/response"
	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/errors"
)

const (
	HeaderAPIKey    = "X-VP-APIKEY"
	HeaderSignature = "X-VP-SIGNATURE"
	HeaderTimestamp = "X-VP-TIMESTAMP"

	// Context keys
	CtxKeyUserID  = "userID"
	CtxKeyUser    = "user"
	CtxKeyAddress = "address"

	// Timestamp tolerance (5 minutes)
	TimestampTolerance = 5 * 60 * 1000 // milliseconds

	maxSignedBody = 1 << 20
)

// UserLookup finds the owner of an API key.
type UserLookup interface {
	GetByAPIKey(apiKey string) (*model.User, error)
}

// Authenticator validates API key signatures. Resolved keys are cached for a
// short TTL so a rotated secret stops working within that window.
type Authenticator struct {
	users UserLookup
	cache *expirable.LRU[string, *model.User]
	now   func() time.Time
}

func NewAuthenticator(users UserLookup, cacheSize int, ttl time.Duration) *Authenticator {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	return &Authenticator{
		users: users,
		cache: expirable.NewLRU[string, *model.User](cacheSize, nil, ttl),
		now:   time.Now,
	}
}

// Invalidate forgets a cached API key.
func (a *Authenticator) Invalidate(apiKey string) {
	a.cache.Remove(apiKey)
}

// Middleware validates API key and signature for private endpoints
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)

		// Check required headers
		if apiKey == "" {
			response.Abort(c, errors.New(errors.CodeInvalidAPIKey))
			return
		}
		if signature == "" {
			response.Abort(c, errors.New(errors.CodeSignatureInvalid))
			return
		}
		if timestampStr == "" {
			response.Abort(c, errors.New(errors.CodeTimestampInvalid))
			return
		}

		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			response.Abort(c, errors.New(errors.CodeTimestampInvalid))
			return
		}
		if abs(a.now().UnixMilli()-timestamp) > TimestampTolerance {
			response.Abort(c, errors.Newf(errors.CodeTimestampInvalid, "timestamp expired"))
			return
		}

		user, err := a.lookup(apiKey)
		if err != nil {
			response.Abort(c, err)
			return
		}

		ok, err := verifySignature(c, user.APISecret, signature, timestampStr)
		if err != nil {
			response.Abort(c, errors.WrapWithMessage(errors.CodeInvalidParam, "request body too large", err))
			return
		}
		if !ok {
			response.Abort(c, errors.New(errors.CodeSignatureInvalid))
			return
		}

		c.Set(CtxKeyUserID, user.ID)
		c.Set(CtxKeyUser, user)
		c.Set(CtxKeyAddress, common.HexToAddress(user.Address))

		c.Next()
	}
}

func (a *Authenticator) lookup(apiKey string) (*model.User, error) {
	if user, ok := a.cache.Get(apiKey); ok {
		return user, nil
	}
	user, err := a.users.GetByAPIKey(apiKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(errors.CodeInvalidAPIKey)
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeSystemError, err)
	}
	a.cache.Add(apiKey, user)
	return user, nil
}

// Sign returns the signature for a request: base64 HMAC-SHA256 over
// timestamp + method + path?query + body.
func Sign(secret, timestamp, method, pathWithQuery string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp + method + pathWithQuery))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies the HMAC-SHA256 signature
func verifySignature(c *gin.Context, secret, signature, timestamp string) (bool, error) {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(c.Request.Body, maxSignedBody+1))
		if err != nil {
			return false, err
		}
		if len(body) > maxSignedBody {
			return false, errors.New(errors.CodeInvalidParam)
		}
		// Restore body for later use
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	path := c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		path += "?" + c.Request.URL.RawQuery
	}

	expected := Sign(secret, timestamp, c.Request.Method, path, body)
	return hmac.Equal([]byte(signature), []byte(expected)), nil
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// GetUserID gets user ID from context
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(CtxKeyUserID)
	if !exists {
		return 0, false
	}
	return userID.(int64), true
}

// GetUser gets user from context
func GetUser(c *gin.Context) (*model.User, bool) {
	user, exists := c.Get(CtxKeyUser)
	if !exists {
		return nil, false
	}
	return user.(*model.User), true
}

// GetAddress gets the authenticated address from context
func GetAddress(c *gin.Context) (common.Address, bool) {
	address, exists := c.Get(CtxKeyAddress)
	if !exists {
		return common.Address{}, false
	}
	return address.(common.Address), true
}
