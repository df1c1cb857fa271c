package engine

import (
	"github.com/vammperp/backend/internal/pkg/errors"
)

func (e *Engine) checkFundingRate(rate int64) error {
	if e.policy.MaxFundingRate > 0 && abs(rate) > uint64(e.policy.MaxFundingRate) {
		return errors.ErrInvalidFundingRate
	}
	return nil
}

func (e *Engine) updateFundingRate(t *tx, in UpdateFundingRate) error {
	if err := t.requireAuthority(in.Authority); err != nil {
		return err
	}
	if err := e.checkFundingRate(in.Rate); err != nil {
		return err
	}
	old := t.market.FundingRate
	t.market.FundingRate = in.Rate
	t.emit(EventFundingRateUpdated, &FundingRateUpdatedEvent{
		Authority: in.Authority,
		OldRate:   old,
		NewRate:   in.Rate,
	})
	return nil
}

// updateFundingPayments accrues every whole interval elapsed since the last
// funding time and settles all open positions against the new index.
func (e *Engine) updateFundingPayments(t *tx) error {
	m := &t.market
	if m.FundingInterval <= 0 {
		return errors.ErrInvalidFundingInterval
	}
	elapsed := t.now - m.LastFundingTime
	intervals := elapsed / m.FundingInterval
	if elapsed <= 0 || intervals == 0 {
		return errors.ErrFundingNotDue
	}

	accrued, err := mulI64(m.FundingRate, intervals)
	if err != nil {
		return err
	}
	if m.CumulativeFunding, err = addI64(m.CumulativeFunding, accrued); err != nil {
		return err
	}
	step, err := mulI64(intervals, m.FundingInterval)
	if err != nil {
		return err
	}
	if m.LastFundingTime, err = addI64(m.LastFundingTime, step); err != nil {
		return err
	}

	var drawn uint64
	ids := t.openPositionIDs()
	for _, id := range ids {
		p, err := t.position(id)
		if err != nil {
			return err
		}
		a, err := t.account(p.Trader)
		if err != nil {
			return err
		}
		covered, err := e.settleFunding(t, p, a)
		if err != nil {
			return err
		}
		drawn += covered
	}

	t.emit(EventFundingUpdated, &FundingUpdatedEvent{
		FundingRate:       m.FundingRate,
		Intervals:         intervals,
		CumulativeFunding: m.CumulativeFunding,
		LastFundingTime:   m.LastFundingTime,
		PositionsSettled:  len(ids),
		InsuranceDrawn:    drawn,
	})
	return nil
}

// settleFunding applies the funding accrued since the position's entry index
// to its margin. A debit larger than the margin is capped and the remainder
// is charged to the insurance fund. It returns the amount drawn from the fund.
func (e *Engine) settleFunding(t *tx, p *Position, a *MarginAccount) (uint64, error) {
	payment, err := FundingPayment(p.Side, p.Size, t.market.CumulativeFunding, p.EntryCumulativeFunding)
	if err != nil {
		return 0, err
	}
	p.EntryCumulativeFunding = t.market.CumulativeFunding
	p.LastFundingPaymentTime = t.now
	if payment == 0 {
		return 0, nil
	}

	var shortfall, covered uint64
	applied := payment
	if payment > 0 {
		credit := uint64(payment)
		if p.Collateral, err = addU64(p.Collateral, credit); err != nil {
			return 0, err
		}
		if a.Collateral, err = addU64(a.Collateral, credit); err != nil {
			return 0, err
		}
		if a.AllocatedMargin, err = addU64(a.AllocatedMargin, credit); err != nil {
			return 0, err
		}
	} else {
		debit := abs(payment)
		taken := min(debit, p.Collateral)
		shortfall = debit - taken
		p.Collateral -= taken
		if a.Collateral, err = subU64(a.Collateral, taken); err != nil {
			return 0, err
		}
		if a.AllocatedMargin, err = subU64(a.AllocatedMargin, taken); err != nil {
			return 0, err
		}
		if covered, err = t.absorbShortfall(shortfall); err != nil {
			return 0, err
		}
		applied = -int64(taken)
	}

	if p.RealizedPnL, err = addI64(p.RealizedPnL, applied); err != nil {
		return 0, err
	}
	if p.LiquidationPrice, err = LiquidationPrice(p.Side, p.EntryPrice, p.Collateral, p.Size, t.market.MaintenanceMarginRatio); err != nil {
		return 0, err
	}

	t.emit(EventFundingSettled, &FundingSettledEvent{
		PositionID: p.ID,
		Trader:     p.Trader,
		Side:       p.Side,
		Payment:    applied,
		Shortfall:  shortfall,
		Collateral: p.Collateral,
	})
	return covered, nil
}
