package service

import (
	"github.com/vammperp/backend/internal/engine"
)

// Warning thresholds as multiples of the maintenance margin ratio, in bps.
const (
	warnMultipleBps   = 15_000
	urgentMultipleBps = 11_000
)

// LiquidationService flags open positions that are approaching maintenance.
type LiquidationService struct {
	engine *engine.Engine
}

func NewLiquidationService(eng *engine.Engine) *LiquidationService {
	return &LiquidationService{engine: eng}
}

// LiquidationWarning is pushed to the owner of a position whose margin ratio
// is below 1.5x maintenance. IsUrgent marks ratios below 1.1x.
type LiquidationWarning struct {
	PositionID       string `json:"positionId"`
	Market           string `json:"market"`
	Trader           string `json:"trader"`
	Side             string `json:"side"`
	Size             uint64 `json:"size"`
	MarginRatioBps   int64  `json:"marginRatioBps"`
	MaintenanceBps   uint64 `json:"maintenanceBps"`
	LiquidationPrice uint64 `json:"liquidationPrice"`
	MarkPrice        uint64 `json:"markPrice"`
	Liquidatable     bool   `json:"liquidatable"`
	IsUrgent         bool   `json:"isUrgent"`
}

// Warnings returns a warning for every open position of market that is at
// risk. It returns nothing while the oracle price is unusable.
func (s *LiquidationService) Warnings(market string) ([]LiquidationWarning, error) {
	m, err := s.engine.Market(market)
	if err != nil {
		return nil, err
	}
	positions, err := s.engine.OpenPositions(market)
	if err != nil {
		return nil, err
	}

	var out []LiquidationWarning
	for _, p := range positions {
		h, err := s.engine.PositionHealth(market, p.ID)
		if err != nil {
			continue
		}
		if w, ok := warningFor(m, h); ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func warningFor(m engine.Market, h engine.PositionHealth) (LiquidationWarning, bool) {
	mmr := int64(m.MaintenanceMarginRatio)
	warnAt := mmr * warnMultipleBps / int64(engine.BasisPoints)
	if h.MarginRatioBps >= warnAt && !h.Liquidatable {
		return LiquidationWarning{}, false
	}
	p := h.Position
	return LiquidationWarning{
		PositionID:       p.ID,
		Market:           p.Market,
		Trader:           p.Trader.Hex(),
		Side:             p.Side.String(),
		Size:             p.Size,
		MarginRatioBps:   h.MarginRatioBps,
		MaintenanceBps:   m.MaintenanceMarginRatio,
		LiquidationPrice: p.LiquidationPrice,
		MarkPrice:        h.MarkPrice,
		Liquidatable:     h.Liquidatable,
		IsUrgent:         h.Liquidatable || h.MarginRatioBps < mmr*urgentMultipleBps/int64(engine.BasisPoints),
	}, true
}
