// Package metrics exposes the Prometheus counters/gauges the engine updates
// during operation, served at /metrics (cmd/engine/main.go).
//
// Grounded directly on the teacher's metrics.go: package-level CounterVec/
// GaugeVec declarations, registered once in init(), with thin Inc/Set helper
// functions — generalized from the teacher's single-product label set to the
// per-user, per-gate, per-playbook labels this engine needs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotengine_ticks_total",
			Help: "Scheduler ticks executed, by user.",
		},
		[]string{"user"},
	)

	GateRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotengine_gate_rejections_total",
			Help: "Guardrail chain rejections, by gate name.",
		},
		[]string{"gate"},
	)

	SignalsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotengine_signals_executed_total",
			Help: "Signals that cleared the gate chain and filled, by playbook.",
		},
		[]string{"playbook"},
	)

	SignalsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotengine_signals_skipped_total",
			Help: "Signals skipped, by gate/reason.",
		},
		[]string{"gate"},
	)

	OpenRInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spotengine_open_r_in_use",
			Help: "Aggregate open R in use, by user.",
		},
		[]string{"user"},
	)

	KillSwitchTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotengine_kill_switch_trips_total",
			Help: "Kill-switch activations, by kind.",
		},
		[]string{"kind"},
	)

	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotengine_fills_total",
			Help: "Order fills, by side.",
		},
		[]string{"side"},
	)

	SlippageBps = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spotengine_slippage_bps",
			Help:    "Realized slippage in basis points at fill time.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"side"},
	)

	EquityUSD = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spotengine_equity_usd",
			Help: "Current equity in USD, by user.",
		},
		[]string{"user"},
	)
)

func init() {
	prometheus.MustRegister(
		Ticks,
		GateRejections,
		SignalsExecuted,
		SignalsSkipped,
		OpenRInUse,
		KillSwitchTrips,
		Fills,
		SlippageBps,
		EquityUSD,
	)
}

func IncTick(user string)              { Ticks.WithLabelValues(user).Inc() }
func IncGateRejection(gate string)     { GateRejections.WithLabelValues(gate).Inc() }
func IncSignalExecuted(playbook string) { SignalsExecuted.WithLabelValues(playbook).Inc() }
func IncSignalSkipped(gate string)     { SignalsSkipped.WithLabelValues(gate).Inc() }
func SetOpenRInUse(user string, r float64) { OpenRInUse.WithLabelValues(user).Set(r) }
func IncKillSwitchTrip(kind string)    { KillSwitchTrips.WithLabelValues(kind).Inc() }
func IncFill(side string)              { Fills.WithLabelValues(side).Inc() }
func ObserveSlippageBps(side string, bps float64) { SlippageBps.WithLabelValues(side).Observe(bps) }
func SetEquityUSD(user string, equity float64)    { EquityUSD.WithLabelValues(user).Set(equity) }
