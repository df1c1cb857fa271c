package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vammperp"

// Metrics owns a private registry with the engine, keeper and websocket
// collectors.
type Metrics struct {
	registry *prometheus.Registry

	intents        *prometheus.CounterVec
	intentLatency  *prometheus.HistogramVec
	events         *prometheus.CounterVec
	liquidations   *prometheus.CounterVec
	insuranceFund  *prometheus.GaugeVec
	badDebt        *prometheus.GaugeVec
	openInterest   *prometheus.GaugeVec
	markPrice      *prometheus.GaugeVec
	keeperRuns     *prometheus.CounterVec
	keeperActions  *prometheus.CounterVec
	custodyFailure prometheus.Counter
	wsClients      prometheus.Gauge
	indexedSeq     *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Intents applied to the engine by result",
		}, []string{"intent", "result"}),

		intentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intent_latency_seconds",
			Help:      "Time spent applying and persisting an intent",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"intent"}),

		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine events emitted by type",
		}, []string{"market", "type"}),

		liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidations_total",
			Help:      "Positions liquidated",
		}, []string{"market"}),

		insuranceFund: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "insurance_fund",
			Help:      "Insurance fund balance in collateral units",
		}, []string{"market"}),

		badDebt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bad_debt",
			Help:      "Uncovered losses in collateral units",
		}, []string{"market"}),

		openInterest: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_interest",
			Help:      "Open interest in base units",
		}, []string{"market", "side"}),

		markPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mark_price",
			Help:      "Last oracle price accepted by the engine",
		}, []string{"market"}),

		keeperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_runs_total",
			Help:      "Keeper loop iterations by result",
		}, []string{"keeper", "result"}),

		keeperActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_actions_total",
			Help:      "Intents submitted by keepers",
		}, []string{"keeper"}),

		custodyFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "custody_failures_total",
			Help:      "Collateral transfers that failed or needed compensation",
		}),

		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients",
		}),

		indexedSeq: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_seq",
			Help:      "Last engine event seq indexed per market",
		}, []string{"market"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.intents,
		m.intentLatency,
		m.events,
		m.liquidations,
		m.insuranceFund,
		m.badDebt,
		m.openInterest,
		m.markPrice,
		m.keeperRuns,
		m.keeperActions,
		m.custodyFailure,
		m.wsClients,
		m.indexedSeq,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// All recorders are safe on a nil *Metrics so callers can run without metrics.

func (m *Metrics) RecordIntent(intent string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.intents.WithLabelValues(intent, result).Inc()
	m.intentLatency.WithLabelValues(intent).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordEvent(market, typ string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(market, typ).Inc()
	if typ == "PositionLiquidated" {
		m.liquidations.WithLabelValues(market).Inc()
	}
}

// SetMarket publishes the risk gauges of one market.
func (m *Metrics) SetMarket(market string, insurance, badDebt, oiLong, oiShort uint64) {
	if m == nil {
		return
	}
	m.insuranceFund.WithLabelValues(market).Set(float64(insurance))
	m.badDebt.WithLabelValues(market).Set(float64(badDebt))
	m.openInterest.WithLabelValues(market, "long").Set(float64(oiLong))
	m.openInterest.WithLabelValues(market, "short").Set(float64(oiShort))
}

func (m *Metrics) SetMarkPrice(market string, price uint64) {
	if m == nil {
		return
	}
	m.markPrice.WithLabelValues(market).Set(float64(price))
}

func (m *Metrics) RecordKeeperRun(keeper string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.keeperRuns.WithLabelValues(keeper, result).Inc()
}

func (m *Metrics) RecordKeeperAction(keeper string) {
	if m == nil {
		return
	}
	m.keeperActions.WithLabelValues(keeper).Inc()
}

func (m *Metrics) RecordCustodyFailure() {
	if m == nil {
		return
	}
	m.custodyFailure.Inc()
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

func (m *Metrics) SetIndexedSeq(market string, seq uint64) {
	if m == nil {
		return
	}
	m.indexedSeq.WithLabelValues(market).Set(float64(seq))
}
