// Package custody holds the external token balances that collateral moves
// between: trader wallets and one vault per market.
package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/errors"
)

// Ledger is an in-memory token ledger. Every transfer either moves the full
// amount or nothing.
type Ledger struct {
	mu      sync.Mutex
	wallets map[common.Address]uint64
	vaults  map[string]uint64
	logger  *zap.Logger
}

func NewLedger(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		wallets: make(map[common.Address]uint64),
		vaults:  make(map[string]uint64),
		logger:  logger.Named("custody"),
	}
}

// Mint credits a wallet out of thin air. Used by faucets and tests.
func (l *Ledger) Mint(owner common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, overflow := ethmath.SafeAdd(l.wallets[owner], amount)
	if overflow {
		return errors.ErrMathOverflow
	}
	l.wallets[owner] = bal
	return nil
}

func (l *Ledger) Balance(owner common.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wallets[owner]
}

func (l *Ledger) VaultBalance(market string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.vaults[market]
}

// RestoreVaults sets every market vault to the collateral the engine holds
// for it: account collateral plus the fee pool and insurance fund. Wallet
// balances are not persisted and start empty.
func (l *Ledger) RestoreVaults(eng *engine.Engine) error {
	for _, symbol := range eng.Symbols() {
		snap, err := eng.Snapshot(symbol)
		if err != nil {
			return err
		}
		total, overflow := ethmath.SafeAdd(snap.Market.FeePool, snap.Market.InsuranceFund)
		for _, a := range snap.Accounts {
			if overflow {
				break
			}
			total, overflow = ethmath.SafeAdd(total, a.Collateral)
		}
		if overflow {
			return fmt.Errorf("vault of %s: %w", symbol, errors.ErrMathOverflow)
		}

		l.mu.Lock()
		l.vaults[symbol] = total
		l.mu.Unlock()
		l.logger.Info("vault restored", zap.String("market", symbol), zap.Uint64("balance", total))
	}
	return nil
}

// Deposit moves amount from the owner's wallet into the market vault.
func (l *Ledger) Deposit(ctx context.Context, market string, owner common.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.wallets[owner]
	if bal < amount {
		return l.failed("deposit", market, owner, amount, fmt.Errorf("wallet balance %d below %d", bal, amount))
	}
	vault, overflow := ethmath.SafeAdd(l.vaults[market], amount)
	if overflow {
		return l.failed("deposit", market, owner, amount, errors.ErrMathOverflow)
	}
	l.wallets[owner] = bal - amount
	l.vaults[market] = vault
	return nil
}

// Withdraw moves amount from the market vault back to the owner's wallet.
func (l *Ledger) Withdraw(ctx context.Context, market string, owner common.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	vault := l.vaults[market]
	if vault < amount {
		return l.failed("withdraw", market, owner, amount, fmt.Errorf("vault balance %d below %d", vault, amount))
	}
	bal, overflow := ethmath.SafeAdd(l.wallets[owner], amount)
	if overflow {
		return l.failed("withdraw", market, owner, amount, errors.ErrMathOverflow)
	}
	l.vaults[market] = vault - amount
	l.wallets[owner] = bal
	return nil
}

func (l *Ledger) failed(op, market string, owner common.Address, amount uint64, cause error) error {
	l.logger.Warn("transfer failed",
		zap.String("op", op),
		zap.String("market", market),
		zap.String("owner", owner.Hex()),
		zap.Uint64("amount", amount),
		zap.Error(cause),
	)
	return errors.Wrap(errors.CodeTransferFailed, cause)
}
