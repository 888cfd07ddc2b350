package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	gamesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duelr",
			Subsystem: "game",
			Name:      "finished_total",
			Help:      "Number of finished games by end reason and color-relative result.",
		}, []string{"reason", "result"},
	)
	forfeits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duelr",
			Subsystem: "game",
			Name:      "time_forfeits_total",
			Help:      "Number of games lost on time per engine.",
		}, []string{"engine"},
	)
	gameDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "duelr",
			Subsystem: "game",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of finished games.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"reason"},
	)
	movesRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duelr",
			Subsystem: "relay",
			Name:      "moves_total",
			Help:      "Number of moves observed from an engine and relayed to its opponent.",
		}, []string{"engine"},
	)
	pollFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duelr",
			Subsystem: "relay",
			Name:      "poll_failures_total",
			Help:      "Number of failed last-move polls per engine.",
		}, []string{"engine"},
	)
	rejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "duelr",
			Subsystem: "relay",
			Name:      "rejected_total",
			Help:      "Number of relayed moves an engine answered with a non-200 status.",
		}, []string{"engine"},
	)
	tally = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "duelr",
			Subsystem: "series",
			Name:      "tally",
			Help:      "Current series tally: wins per engine and draws (engine=\"draw\").",
		}, []string{"engine"},
	)
	engineReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "duelr",
			Subsystem: "engine",
			Name:      "ready",
			Help:      "Engine readiness (1 = passed liveness gate, 0 = not ready or stopped).",
		}, []string{"engine"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{gamesTotal, forfeits, gameDuration, movesRelayed, pollFailures, rejected, tally, engineReady}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveGame(reason, result string, seconds float64) {
	if regOK.Load() {
		gamesTotal.WithLabelValues(reason, result).Inc()
		gameDuration.WithLabelValues(reason).Observe(seconds)
	}
}

func IncForfeit(engine string) {
	if regOK.Load() {
		forfeits.WithLabelValues(engine).Inc()
	}
}

func IncRelayed(engine string) {
	if regOK.Load() {
		movesRelayed.WithLabelValues(engine).Inc()
	}
}

func IncPollFailure(engine string) {
	if regOK.Load() {
		pollFailures.WithLabelValues(engine).Inc()
	}
}

func IncRejected(engine string) {
	if regOK.Load() {
		rejected.WithLabelValues(engine).Inc()
	}
}

func SetTally(engine string, n int) {
	if regOK.Load() {
		tally.WithLabelValues(engine).Set(float64(n))
	}
}

func SetEngineReady(engine string, ready bool) {
	if regOK.Load() {
		var v float64
		if ready {
			v = 1
		}
		engineReady.WithLabelValues(engine).Set(v)
	}
}
