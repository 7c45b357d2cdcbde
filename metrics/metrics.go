// Package metrics exposes game server counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wricardo/knights-trail/game/orchestrator"
)

const namespace = "knights"

// Collector holds the server's collectors on its own registry.
type Collector struct {
	registry *prometheus.Registry

	rounds         prometheus.Counter
	timedOut       prometheus.Counter
	events         *prometheus.CounterVec
	gamesFinished  *prometheus.CounterVec
	gameLength     prometheus.Histogram
	activeSessions prometheus.Gauge
}

// New creates a Collector with process and Go runtime collectors included.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Rounds resolved across all sessions",
		}),
		timedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_timed_out_total",
			Help:      "Rounds played because a human timed out",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Round events by type",
		}, []string{"type"}),
		gamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games by outcome",
		}, []string{"outcome"}),
		gameLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "game_length_turns",
			Help:      "Turns played per finished game",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 8),
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),
	}

	c.registry.MustRegister(
		c.rounds,
		c.timedOut,
		c.events,
		c.gamesFinished,
		c.gameLength,
		c.activeSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRound records one round and, when it ended the game, its outcome.
func (c *Collector) ObserveRound(r orchestrator.RoundResult) {
	c.rounds.Inc()
	if r.TimedOut {
		c.timedOut.Inc()
	}
	for _, ev := range r.Events {
		c.events.WithLabelValues(string(ev.Type)).Inc()
	}
	if r.State == nil || !r.State.IsOver() {
		return
	}
	outcome := "single"
	switch {
	case r.Stalemate():
		outcome = "stalemate"
	case len(r.State.Winners()) > 1:
		outcome = "tie"
	}
	c.gamesFinished.WithLabelValues(outcome).Inc()
	c.gameLength.Observe(float64(r.State.Turn))
}

// SetActiveSessions reports the number of live sessions.
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}
