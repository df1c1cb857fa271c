package engine

import (
	"github.com/vammperp/backend/internal/pkg/errors"
)

func (e *Engine) createMarginAccount(t *tx, in CreateMarginAccount) error {
	if !in.MarginType.Valid() {
		return errors.ErrInvalidParameter
	}
	if t.hasAccount(in.Owner) {
		return errors.ErrMarginAccountExists
	}
	t.putAccount(&MarginAccount{
		Owner:      in.Owner,
		Market:     t.market.Symbol,
		MarginType: in.MarginType,
		Positions:  []string{},
		Orders:     []string{},
		CreatedAt:  t.now,
	})
	t.emit(EventMarginAccountCreated, &MarginAccountCreatedEvent{
		Owner:      in.Owner,
		MarginType: in.MarginType,
	})
	return nil
}

func (e *Engine) depositCollateral(t *tx, in DepositCollateral) error {
	if in.Amount == 0 {
		return errors.ErrDepositTooSmall
	}
	if !in.Refund {
		if err := t.requireActive(); err != nil {
			return err
		}
		if in.Amount < e.policy.MinDeposit {
			return errors.ErrDepositTooSmall
		}
	}
	a, err := t.account(in.Owner)
	if err != nil {
		return err
	}
	if a.Collateral, err = addU64(a.Collateral, in.Amount); err != nil {
		return err
	}
	t.emit(EventCollateralDeposited, &CollateralEvent{
		Owner:      in.Owner,
		Amount:     in.Amount,
		Collateral: a.Collateral,
	})
	return nil
}

func (e *Engine) withdrawCollateral(t *tx, in WithdrawCollateral) error {
	if err := t.requireActive(); err != nil {
		return err
	}
	if in.Amount == 0 || in.Amount < e.policy.MinWithdrawal {
		return errors.ErrWithdrawalTooSmall
	}
	a, err := t.account(in.Owner)
	if err != nil {
		return err
	}
	if in.Amount > a.Available() {
		return errors.ErrInsufficientCollateral
	}
	a.Collateral -= in.Amount

	// Free collateral backs cross positions, so every one of them must stay
	// above maintenance after the withdrawal.
	if a.MarginType == MarginCross && len(a.Positions) > 0 {
		mark, err := e.policy.markPrice(t.oracle, t.now)
		if err != nil {
			return err
		}
		for _, id := range a.Positions {
			p, err := t.position(id)
			if err != nil {
				return err
			}
			unsafe, err := e.undercollateralized(t, p, a, mark)
			if err != nil {
				return err
			}
			if unsafe {
				return errors.ErrWithdrawalBelowMaintenanceMargin
			}
		}
	}

	t.emit(EventCollateralWithdrawn, &CollateralEvent{
		Owner:      in.Owner,
		Amount:     in.Amount,
		Collateral: a.Collateral,
	})
	return nil
}

// lossCapacity is the most a position can lose before the remainder becomes
// a shortfall: its own margin, plus the account's free collateral for cross
// accounts.
func lossCapacity(p *Position, a *MarginAccount) (uint64, error) {
	if a.MarginType != MarginCross {
		return p.Collateral, nil
	}
	return addU64(p.Collateral, a.Available())
}

// equity returns the capital backing p at mark, and the position's PnL.
func equity(p *Position, a *MarginAccount, mark uint64) (int64, int64, error) {
	pnl, err := UnrealizedPnL(p.Side, p.EntryPrice, mark, p.Size)
	if err != nil {
		return 0, 0, err
	}
	capacity, err := lossCapacity(p, a)
	if err != nil {
		return 0, 0, err
	}
	base, err := signed(capacity, false)
	if err != nil {
		return 0, 0, err
	}
	eq, err := addI64(base, pnl)
	if err != nil {
		return 0, 0, err
	}
	return eq, pnl, nil
}

func (e *Engine) undercollateralized(t *tx, p *Position, a *MarginAccount, mark uint64) (bool, error) {
	eq, _, err := equity(p, a, mark)
	if err != nil {
		return false, err
	}
	notional, err := Notional(p.Size, mark)
	if err != nil {
		return false, err
	}
	return Undercollateralized(eq, notional, t.market.MaintenanceMarginRatio), nil
}
