// Package metrics holds the Prometheus collectors exposed at /metrics.
//
//   - autotrader_broker_calls_total{api}             broker calls counted by the rate governor
//   - autotrader_governor_trips_total                transitions into LIMITED
//   - autotrader_governor_status{status}             1 for the current governor status
//   - autotrader_signals_submitted_total{kind,outcome}
//   - autotrader_signal_transitions_total{status}
//   - autotrader_orders_total{side,result}
//   - autotrader_exits_total{reason}
//   - autotrader_loop_runs_total{component,result}
package metrics

import "github.com/prometheus/client_golang/prometheus"

var governorStatuses = []string{"NORMAL", "WARNING", "LIMITED", "RECOVERING"}

var (
	BrokerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_broker_calls_total",
			Help: "Broker calls counted against the rate budget",
		},
		[]string{"api"},
	)

	GovernorTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autotrader_governor_trips_total",
			Help: "Times the rate governor entered LIMITED",
		},
	)

	// One labeled series per status, flipped between 0 and 1.
	GovernorStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autotrader_governor_status",
			Help: "Current rate governor status (1 = active)",
		},
		[]string{"status"},
	)

	SignalsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_signals_submitted_total",
			Help: "Signal submissions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SignalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_signal_transitions_total",
			Help: "Signal status transitions by target status",
		},
		[]string{"status"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_orders_total",
			Help: "Orders sent to the broker by side and result",
		},
		[]string{"side", "result"},
	)

	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_exits_total",
			Help: "Position exits by reason",
		},
		[]string{"reason"},
	)

	LoopRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_loop_runs_total",
			Help: "Worker loop iterations by component and result",
		},
		[]string{"component", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		BrokerCalls,
		GovernorTrips,
		GovernorStatus,
		SignalsSubmitted,
		SignalTransitions,
		Orders,
		Exits,
		LoopRuns,
	)
}

// SetGovernorStatus marks status as the active series.
func SetGovernorStatus(status string) {
	for _, s := range governorStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		GovernorStatus.WithLabelValues(s).Set(v)
	}
}
