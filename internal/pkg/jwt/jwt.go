package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "vammperp"

// Token kinds carried in Claims.Kind
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims represents the JWT claims
type Claims struct {
	Address string `json:"address"`
	UserID  int64  `json:"user_id"`
	Kind    string `json:"kind"`
	jwt.RegisteredClaims
}

// Manager handles JWT token generation and validation
type Manager struct {
	secret          []byte
	accessTokenExp  time.Duration
	refreshTokenExp time.Duration
	now             func() time.Time
}

func NewManager(secret string, accessTokenExp time.Duration) *Manager {
	return &Manager{
		secret:          []byte(secret),
		accessTokenExp:  accessTokenExp,
		refreshTokenExp: accessTokenExp * 7,
		now:             time.Now,
	}
}

func (m *Manager) AccessTokenTTL() time.Duration {
	return m.accessTokenExp
}

func (m *Manager) sign(address string, userID int64, kind string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Address: address,
		UserID:  userID,
		Kind:    kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   address,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// GenerateAccessToken generates an access token for the user
func (m *Manager) GenerateAccessToken(address string, userID int64) (string, error) {
	return m.sign(address, userID, KindAccess, m.accessTokenExp)
}

// GenerateTokenPair generates both access and refresh tokens
func (m *Manager) GenerateTokenPair(address string, userID int64) (accessToken, refreshToken string, err error) {
	accessToken, err = m.GenerateAccessToken(address, userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err = m.sign(address, userID, KindRefresh, m.refreshTokenExp)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

// ValidateToken validates an access token and returns its claims
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	return m.validate(tokenString, KindAccess)
}

func (m *Manager) validate(tokenString, kind string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("expected %s token, got %q", kind, claims.Kind)
	}
	return claims, nil
}

// RefreshAccessToken generates a new access token from a valid refresh token
func (m *Manager) RefreshAccessToken(refreshToken string) (string, error) {
	claims, err := m.validate(refreshToken, KindRefresh)
	if err != nil {
		return "", fmt.Errorf("invalid refresh token: %w", err)
	}
	return m.GenerateAccessToken(claims.Address, claims.UserID)
}
