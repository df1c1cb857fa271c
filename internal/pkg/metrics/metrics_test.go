package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// value returns the value of the first sample of name whose labels include
// every pair in labels.
func value(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, metric := range f.GetMetric() {
			got := make(map[string]string)
			for _, l := range metric.GetLabel() {
				got[l.GetName()] = l.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestRecordIntent(t *testing.T) {
	m := New()
	m.RecordIntent("open_position", nil, time.Millisecond)
	m.RecordIntent("open_position", errors.New("boom"), time.Millisecond)
	m.RecordIntent("open_position", nil, time.Millisecond)

	if got := value(t, m, "vammperp_intents_total", map[string]string{"intent": "open_position", "result": "ok"}); got != 2 {
		t.Errorf("ok intents = %v, want 2", got)
	}
	if got := value(t, m, "vammperp_intents_total", map[string]string{"intent": "open_position", "result": "rejected"}); got != 1 {
		t.Errorf("rejected intents = %v, want 1", got)
	}
}

func TestRecordEventCountsLiquidations(t *testing.T) {
	m := New()
	m.RecordEvent("SOL-PERP", "PositionOpened")
	m.RecordEvent("SOL-PERP", "PositionLiquidated")

	if got := value(t, m, "vammperp_liquidations_total", map[string]string{"market": "SOL-PERP"}); got != 1 {
		t.Errorf("liquidations = %v, want 1", got)
	}
	if got := value(t, m, "vammperp_events_total", map[string]string{"type": "PositionOpened"}); got != 1 {
		t.Errorf("opened events = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordIntent("x", nil, 0)
	m.RecordEvent("m", "t")
	m.SetMarket("m", 1, 2, 3, 4)
	m.SetMarkPrice("m", 1)
	m.RecordKeeperRun("k", nil)
	m.RecordKeeperAction("k")
	m.RecordCustodyFailure()
	m.SetWSClients(3)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.SetMarket("SOL-PERP", 10, 0, 5, 7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `vammperp_open_interest{market="SOL-PERP",side="short"} 7`) {
		t.Errorf("open interest gauge missing from output:\n%s", body)
	}
}
