package backend

import "github.com/prometheus/client_golang/prometheus"

var (
	backendState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sidekick_backend_state",
			Help: "Current backend lifecycle state (1 for the active state).",
		},
		[]string{"state"},
	)
	backendLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidekick_backend_launches_total",
			Help: "llama-server launches by outcome.",
		},
		[]string{"outcome"},
	)
	backendCrashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sidekick_backend_crashes_total",
			Help: "Healthy llama-server backends lost to a crash or an unreachable adopted server.",
		},
	)
)

func init() {
	prometheus.MustRegister(backendState, backendLaunches, backendCrashes)
}

func observeState(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		backendState.WithLabelValues(st.String()).Set(v)
	}
}
