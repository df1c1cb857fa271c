package engine

import (
	"time"

	"github.com/vammperp/backend/internal/pkg/errors"
)

// Policy holds the engine-wide risk limits that are not market parameters.
type Policy struct {
	// MaxOracleStaleness rejects oracle prices older than this. Zero disables
	// the check.
	MaxOracleStaleness time.Duration
	// MaxConfidenceBps rejects prices whose confidence interval is wider than
	// this share of the price. Zero disables the check.
	MaxConfidenceBps uint64
	// MaxFundingRate bounds |fundingRate|. Zero disables the bound.
	MaxFundingRate int64
	MinDeposit     uint64
	MinWithdrawal  uint64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxOracleStaleness: 60 * time.Second,
		MaxConfidenceBps:   100,
		MaxFundingRate:     int64(Scale) / 100,
		MinDeposit:         1,
		MinWithdrawal:      1,
	}
}

// markPrice validates the market oracle at now and returns its price.
func (p Policy) markPrice(o *Oracle, now int64) (uint64, error) {
	if o == nil || o.Price <= 0 {
		return 0, errors.ErrInvalidOracleAccount
	}
	if p.MaxOracleStaleness > 0 {
		age := now - o.PublishTime
		if age > int64(p.MaxOracleStaleness/time.Second) {
			return 0, errors.ErrStaleOraclePrice
		}
	}
	price := uint64(o.Price)
	if p.MaxConfidenceBps > 0 && lessProduct(price, p.MaxConfidenceBps, o.Confidence, BasisPoints) {
		return 0, errors.ErrPriceConfidenceTooLow
	}
	return price, nil
}
