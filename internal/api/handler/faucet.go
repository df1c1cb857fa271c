package handler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/vammperp/backend/internal/api/response"
	"github.com/vammperp/backend/internal/pkg/errors"
)

// Minter credits test tokens to a wallet.
type Minter interface {
	Mint(owner common.Address, amount uint64) error
	Balance(owner common.Address) uint64
}

// FaucetHandler hands out custody tokens so wallets can deposit collateral.
// Only the configured faucet authority may mint, up to maxAmount per call.
type FaucetHandler struct {
	minter    Minter
	authority common.Address
	maxAmount uint64
}

func NewFaucetHandler(minter Minter, authority common.Address, maxAmount uint64) *FaucetHandler {
	return &FaucetHandler{minter: minter, authority: authority, maxAmount: maxAmount}
}

type FaucetRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  uint64 `json:"amount" binding:"required"`
}

type WalletBalance struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// Mint credits amount to a wallet
// POST /api/v1/admin/faucet
func (h *FaucetHandler) Mint(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	if who != h.authority {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	var req FaucetRequest
	if !bindJSON(c, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		response.Error(c, errors.Newf(errors.CodeInvalidParam, "invalid address %s", req.Address))
		return
	}
	if h.maxAmount > 0 && req.Amount > h.maxAmount {
		response.Error(c, errors.Newf(errors.CodeInvalidParam, "amount exceeds faucet limit %d", h.maxAmount))
		return
	}

	owner := common.HexToAddress(req.Address)
	if err := h.minter.Mint(owner, req.Amount); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, WalletBalance{Address: owner.Hex(), Balance: h.minter.Balance(owner)})
}

// GetBalance returns the caller's wallet balance outside the engine
// GET /api/v1/account/wallet
func (h *FaucetHandler) GetBalance(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		return
	}
	response.Success(c, WalletBalance{Address: who.Hex(), Balance: h.minter.Balance(who)})
}
