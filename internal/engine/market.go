package engine

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vammperp/backend/internal/pkg/errors"
)

const maxSymbolLength = 32

type riskParams struct {
	maintenanceMarginRatio uint64
	initialMarginRatio     uint64
	maxLeverage            uint64
	liquidationFeeRatio    uint64
	tradingFeeRatio        uint64
	fundingInterval        int64
}

func (p riskParams) validate() error {
	if p.fundingInterval <= 0 {
		return errors.ErrInvalidFundingInterval
	}
	if p.maintenanceMarginRatio == 0 || p.maintenanceMarginRatio >= BasisPoints {
		return errors.ErrInvalidMarginRatio
	}
	if p.initialMarginRatio < p.maintenanceMarginRatio || p.initialMarginRatio >= BasisPoints {
		return errors.ErrInvalidMarginRatio
	}
	if p.maxLeverage == 0 {
		return errors.ErrInvalidLeverage
	}
	if p.liquidationFeeRatio == 0 || p.liquidationFeeRatio >= BasisPoints {
		return errors.ErrInvalidParameter
	}
	if p.tradingFeeRatio >= BasisPoints {
		return errors.ErrInvalidParameter
	}
	return nil
}

func (p riskParams) apply(m *Market) {
	m.MaintenanceMarginRatio = p.maintenanceMarginRatio
	m.InitialMarginRatio = p.initialMarginRatio
	m.MaxLeverage = p.maxLeverage
	m.LiquidationFeeRatio = p.liquidationFeeRatio
	m.TradingFeeRatio = p.tradingFeeRatio
	m.FundingInterval = p.fundingInterval
}

func paramsOf(m Market) riskParams {
	return riskParams{
		maintenanceMarginRatio: m.MaintenanceMarginRatio,
		initialMarginRatio:     m.InitialMarginRatio,
		maxLeverage:            m.MaxLeverage,
		liquidationFeeRatio:    m.LiquidationFeeRatio,
		tradingFeeRatio:        m.TradingFeeRatio,
		fundingInterval:        m.FundingInterval,
	}
}

func validSymbol(s string) bool {
	return s != "" && len(s) <= maxSymbolLength && strings.TrimSpace(s) == s
}

func (e *Engine) initializeMarket(t *tx, in InitializeMarket) error {
	if !validSymbol(in.Market) {
		return errors.ErrInvalidMarketSymbol
	}
	params := riskParams{
		maintenanceMarginRatio: in.MaintenanceMarginRatio,
		initialMarginRatio:     in.InitialMarginRatio,
		maxLeverage:            in.MaxLeverage,
		liquidationFeeRatio:    in.LiquidationFeeRatio,
		tradingFeeRatio:        in.TradingFeeRatio,
		fundingInterval:        in.FundingInterval,
	}
	if err := params.validate(); err != nil {
		return err
	}
	if err := e.checkFundingRate(in.FundingRate); err != nil {
		return err
	}
	if _, err := ModelFor(in.Pricing); err != nil {
		return err
	}
	amm, err := newAMM(in.Pricing, in.BaseReserve, in.QuoteReserve, in.PriceImpactFactor)
	if err != nil {
		return err
	}

	t.market = Market{
		Symbol:          in.Market,
		Authority:       in.Authority,
		IsActive:        true,
		AMM:             amm,
		FundingRate:     in.FundingRate,
		LastFundingTime: t.now,
		CreatedAt:       t.now,
	}
	params.apply(&t.market)

	t.emit(EventMarketInitialized, &MarketInitializedEvent{
		Authority:              in.Authority,
		Pricing:                in.Pricing,
		BaseReserve:            amm.BaseReserve,
		QuoteReserve:           amm.QuoteReserve,
		Price:                  amm.LastPrice,
		FundingRate:            in.FundingRate,
		FundingInterval:        in.FundingInterval,
		MaintenanceMarginRatio: in.MaintenanceMarginRatio,
		InitialMarginRatio:     in.InitialMarginRatio,
		MaxLeverage:            in.MaxLeverage,
		LiquidationFeeRatio:    in.LiquidationFeeRatio,
		TradingFeeRatio:        in.TradingFeeRatio,
	})
	return nil
}

func (e *Engine) setMarketActive(t *tx, signer common.Address, active bool) error {
	if err := t.requireAuthority(signer); err != nil {
		return err
	}
	switch {
	case active && t.market.IsActive:
		return errors.ErrMarketAlreadyActive
	case !active && !t.market.IsActive:
		return errors.ErrMarketAlreadyPaused
	}
	t.market.IsActive = active

	typ := EventMarketPaused
	if active {
		typ = EventMarketResumed
	}
	t.emit(typ, &MarketStatusEvent{Authority: signer, IsActive: active})
	return nil
}

func (e *Engine) updateMarketParams(t *tx, in UpdateMarketParams) error {
	if err := t.requireAuthority(in.Authority); err != nil {
		return err
	}
	params := paramsOf(t.market)
	if in.MaintenanceMarginRatio != nil {
		params.maintenanceMarginRatio = *in.MaintenanceMarginRatio
	}
	if in.InitialMarginRatio != nil {
		params.initialMarginRatio = *in.InitialMarginRatio
	}
	if in.FundingInterval != nil {
		params.fundingInterval = *in.FundingInterval
	}
	if in.MaxLeverage != nil {
		params.maxLeverage = *in.MaxLeverage
	}
	if in.LiquidationFeeRatio != nil {
		params.liquidationFeeRatio = *in.LiquidationFeeRatio
	}
	if in.TradingFeeRatio != nil {
		params.tradingFeeRatio = *in.TradingFeeRatio
	}
	if err := params.validate(); err != nil {
		return err
	}
	params.apply(&t.market)

	t.emit(EventMarketParamsUpdated, &MarketParamsUpdatedEvent{
		Authority:              in.Authority,
		MaintenanceMarginRatio: params.maintenanceMarginRatio,
		InitialMarginRatio:     params.initialMarginRatio,
		FundingInterval:        params.fundingInterval,
		MaxLeverage:            params.maxLeverage,
		LiquidationFeeRatio:    params.liquidationFeeRatio,
		TradingFeeRatio:        params.tradingFeeRatio,
	})
	return nil
}

func (e *Engine) initializeOracle(t *tx, in InitializeOracle) error {
	if err := t.requireAuthority(in.Authority); err != nil {
		return err
	}
	if t.oracle != nil {
		return errors.ErrOracleAlreadyExists
	}
	if in.Price <= 0 {
		return errors.ErrInvalidOracleAccount
	}
	feed := in.FeedAuthority
	if feed == (common.Address{}) {
		feed = in.Authority
	}
	t.setOracle(&Oracle{
		Symbol:      t.market.Symbol,
		Authority:   feed,
		Price:       in.Price,
		Confidence:  in.Confidence,
		PublishTime: t.now,
	})
	t.emit(EventOracleInitialized, &OracleEvent{
		Authority:   feed,
		Price:       in.Price,
		Confidence:  in.Confidence,
		PublishTime: t.now,
	})
	return nil
}

func (e *Engine) updateOraclePrice(t *tx, in UpdateOraclePrice) error {
	if t.oracle == nil {
		return errors.ErrInvalidOracleAccount
	}
	if in.Authority != t.oracle.Authority {
		return errors.ErrUnauthorized
	}
	if in.Price <= 0 {
		return errors.ErrInvalidParameter
	}
	publish := in.PublishTime
	if publish == 0 {
		publish = t.now
	}
	if publish > t.now || publish < t.oracle.PublishTime {
		return errors.ErrInvalidParameter
	}

	o := *t.oracle
	o.Price = in.Price
	o.Confidence = in.Confidence
	o.PublishTime = publish
	t.setOracle(&o)

	t.emit(EventOraclePriceUpdated, &OracleEvent{
		Authority:   o.Authority,
		Price:       o.Price,
		Confidence:  o.Confidence,
		PublishTime: o.PublishTime,
	})
	return nil
}
