package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vammperp/backend/internal/api/response"
	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/errors"
	"github.com/vammperp/backend/internal/pkg/jwt"
	"github.com/vammperp/backend/internal/pkg/nonce"
)

// NonceStore issues and consumes login challenges.
type NonceStore interface {
	Issue(ctx context.Context, address common.Address) (string, error)
	Consume(ctx context.Context, address common.Address, nonce string) error
}

// CredentialStore keeps the API key pair of each wallet.
type CredentialStore interface {
	GetByAddress(address string) (*model.User, error)
	RotateCredentials(address, apiKey, apiSecret string) (*model.User, error)
}

// KeyCache forgets API keys that were rotated.
type KeyCache interface {
	Invalidate(apiKey string)
}

// AuthHandler handles wallet login
type AuthHandler struct {
	users      CredentialStore
	nonces     NonceStore
	keys       KeyCache
	jwtManager *jwt.Manager
	logger     *zap.Logger
}

func NewAuthHandler(users CredentialStore, nonces NonceStore, keys KeyCache, jwtManager *jwt.Manager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:      users,
		nonces:     nonces,
		keys:       keys,
		jwtManager: jwtManager,
		logger:     logger,
	}
}

// NonceRequest is the request for getting a nonce
type NonceRequest struct {
	Address string `json:"address" binding:"required"`
}

// NonceResponse is the response containing the nonce to sign
type NonceResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// LoginRequest is the request for login
type LoginRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Nonce     string `json:"nonce" binding:"required"`
}

// LoginResponse carries fresh API credentials and JWTs. The secret is only
// ever shown here.
type LoginResponse struct {
	APIKey       string `json:"apiKey"`
	APISecret    string `json:"apiSecret"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Address      string `json:"address"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// GetNonce returns a nonce for the wallet to sign
// POST /api/v1/auth/nonce
func (h *AuthHandler) GetNonce(c *gin.Context) {
	var req NonceRequest
	if !bindJSON(c, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		response.Error(c, errors.Newf(errors.CodeInvalidParam, "invalid address %s", req.Address))
		return
	}

	n, err := h.nonces.Issue(c.Request.Context(), common.HexToAddress(req.Address))
	if err != nil {
		response.Error(c, errors.Wrap(errors.CodeSystemError, err))
		return
	}

	response.Success(c, NonceResponse{Nonce: n, Message: nonce.Message(n)})
}

// Login verifies the signed nonce and rotates the caller's API credentials
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		response.Error(c, errors.Newf(errors.CodeInvalidParam, "invalid address %s", req.Address))
		return
	}
	address := common.HexToAddress(req.Address)

	err := h.nonces.Consume(c.Request.Context(), address, req.Nonce)
	if stderrors.Is(err, nonce.ErrNonceNotFound) || stderrors.Is(err, nonce.ErrNonceMismatch) {
		response.Error(c, errors.WrapWithMessage(errors.CodeSignatureInvalid, err.Error(), err))
		return
	}
	if err != nil {
		response.Error(c, errors.Wrap(errors.CodeSystemError, err))
		return
	}

	recovered, err := recoverAddress(nonce.Message(req.Nonce), req.Signature)
	if err != nil {
		response.Error(c, errors.WrapWithMessage(errors.CodeSignatureInvalid, err.Error(), err))
		return
	}
	if recovered != address {
		response.Error(c, errors.Newf(errors.CodeSignatureInvalid, "signature does not match address"))
		return
	}

	previous, err := h.users.GetByAddress(address.Hex())
	if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		response.Error(c, errors.Wrap(errors.CodeSystemError, err))
		return
	}

	apiKey, err := randomHex(32)
	if err != nil {
		response.Error(c, errors.Wrap(errors.CodeSystemError, err))
		return
	}
	apiSecret, err := randomHex(64)
	if err != nil {
		response.Error(c, errors.Wrap(errors.CodeSystemError, err))
		return
	}
	user, err := h.users.RotateCredentials(address.Hex(), apiKey, apiSecret)
	if err != nil {
		response.Error(c, errors.Wrap(errors.CodeSystemError, err))
		return
	}
	if previous != nil && h.keys != nil {
		h.keys.Invalidate(previous.APIKey)
	}

	accessToken, refreshToken, err := h.jwtManager.GenerateTokenPair(user.Address, user.ID)
	if err != nil {
		response.Error(c, errors.Wrap(errors.CodeSystemError, err))
		return
	}

	h.logger.Info("Wallet logged in", zap.String("address", user.Address))
	response.Success(c, LoginResponse{
		APIKey:       apiKey,
		APISecret:    apiSecret,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Address:      user.Address,
		ExpiresAt:    time.Now().Add(h.jwtManager.AccessTokenTTL()).Unix(),
	})
}

// Refresh exchanges a refresh token for a new access token
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		response.Error(c, errors.WrapWithMessage(errors.CodeAPIKeyExpired, err.Error(), err))
		return
	}

	response.Success(c, gin.H{
		"accessToken": token,
		"expiresAt":   time.Now().Add(h.jwtManager.AccessTokenTTL()).Unix(),
	})
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// recoverAddress recovers the signer of a personal_sign message
func recoverAddress(message, signatureHex string) (common.Address, error) {
	signature, err := hexutil.Decode(signatureHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature format: %w", err)
	}

	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	// Wallets send v as 27/28
	if signature[crypto.RecoveryIDOffset] >= 27 {
		signature[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(message))
	pubKey, err := crypto.SigToPub(hash, signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}
