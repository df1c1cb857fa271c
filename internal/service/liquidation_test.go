package service

import (
	"testing"

	"github.com/vammperp/backend/internal/engine"
)

func TestWarningFor(t *testing.T) {
	m := engine.Market{Symbol: testMarket, MaintenanceMarginRatio: 500}

	tests := []struct {
		name       string
		ratio      int64
		liq        bool
		wantWarn   bool
		wantUrgent bool
	}{
		{"healthy", 2_000, false, false, false},
		{"at warning edge", 750, false, false, false},
		{"warning", 700, false, true, false},
		{"urgent", 540, false, true, true},
		{"liquidatable", 400, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := engine.PositionHealth{
				Position:       engine.Position{ID: "ETH-PERP-P1", Market: testMarket, Trader: alice, Side: engine.SideLong},
				MarkPrice:      1_000_000,
				MarginRatioBps: tt.ratio,
				Liquidatable:   tt.liq,
			}
			w, ok := warningFor(m, h)
			if ok != tt.wantWarn {
				t.Fatalf("warn = %v, want %v", ok, tt.wantWarn)
			}
			if ok && w.IsUrgent != tt.wantUrgent {
				t.Errorf("urgent = %v, want %v", w.IsUrgent, tt.wantUrgent)
			}
			if ok && w.Trader != alice.Hex() {
				t.Errorf("trader = %s", w.Trader)
			}
		})
	}
}

func TestWarningsSkipHealthyPositions(t *testing.T) {
	s := newTestService(t, nil, nil)
	setupMarket(t, s)
	mustApply(t, s, engine.DepositCollateral{Market: testMarket, Owner: alice, Amount: 1_000_000})
	mustApply(t, s, engine.OpenPosition{Market: testMarket, Trader: alice, Side: engine.SideLong, Size: 1_000_000, Leverage: 2})

	warnings, err := NewLiquidationService(s.Engine()).Warnings(testMarket)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %+v", warnings)
	}
}
