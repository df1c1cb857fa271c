package nonce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNonceNotFound = errors.New("nonce not found or expired")
	ErrNonceMismatch = errors.New("nonce mismatch")
)

// Manager issues single-use login challenges. A challenge is stored in Redis
// per address and removed atomically when consumed.
type Manager struct {
	redis     *redis.Client
	logger    *zap.Logger
	keyPrefix string
	ttl       time.Duration
}

func NewManager(redis *redis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		redis:     redis,
		logger:    logger,
		keyPrefix: "nonce:login:",
		ttl:       5 * time.Minute,
	}
}

// Message is the text the wallet signs for nonce.
func Message(nonce string) string {
	return fmt.Sprintf("Sign this message to login to vAMM Perp.\n\nNonce: %s", nonce)
}

// Issue creates a fresh challenge for address, replacing any earlier one.
func (m *Manager) Issue(ctx context.Context, address common.Address) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)

	if err := m.redis.Set(ctx, m.key(address), nonce, m.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store nonce in Redis: %w", err)
	}
	return nonce, nil
}

// Consume checks nonce against the stored challenge and deletes it. A
// challenge can be consumed at most once, even on mismatch.
func (m *Manager) Consume(ctx context.Context, address common.Address, nonce string) error {
	stored, err := m.redis.GetDel(ctx, m.key(address)).Result()
	if err == redis.Nil {
		return ErrNonceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read nonce from Redis: %w", err)
	}
	if stored != nonce {
		m.logger.Warn("login nonce mismatch", zap.String("address", address.Hex()))
		return ErrNonceMismatch
	}
	return nil
}

func (m *Manager) key(address common.Address) string {
	return m.keyPrefix + address.Hex()
}
