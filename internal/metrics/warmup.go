package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tgwarmup/tgwarmup/internal/models"
	"github.com/tgwarmup/tgwarmup/internal/scheduler"
	"github.com/tgwarmup/tgwarmup/internal/warmup"
)

// WarmupCollector records warmup runs, action outcomes, skips and
// scheduler ticks.
type WarmupCollector struct {
	runsTotal    *prometheus.CounterVec
	actionsTotal *prometheus.CounterVec
	skipsTotal   *prometheus.CounterVec
	runDuration  prometheus.Histogram
	floodWaits   prometheus.Counter
	tickAccounts *prometheus.GaugeVec
	tickDuration prometheus.Histogram
}

// NewWarmupCollector creates the collectors and registers them on reg.
func NewWarmupCollector(reg prometheus.Registerer) (*WarmupCollector, error) {
	c := &WarmupCollector{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warmup",
			Name:      "runs_total",
			Help:      "Warmup runs by trigger and whether the fallback plan was used.",
		}, []string{"trigger", "fallback"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warmup",
			Name:      "actions_total",
			Help:      "Executed warmup actions by type and outcome.",
		}, []string{"action", "status"}),
		skipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warmup",
			Name:      "skips_total",
			Help:      "Accounts refused by the eligibility filter, by reason.",
		}, []string{"reason"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "warmup",
			Name:      "run_duration_seconds",
			Help:      "Wall time of warmup runs.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
		}),
		floodWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warmup",
			Name:      "frozen_accounts_total",
			Help:      "Runs that ended with the account frozen.",
		}),
		tickAccounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_tick_accounts",
			Help:      "Accounts per outcome in the most recent scheduler tick.",
		}, []string{"outcome"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of scheduler ticks.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	for _, col := range []prometheus.Collector{
		c.runsTotal, c.actionsTotal, c.skipsTotal, c.runDuration, c.floodWaits, c.tickAccounts, c.tickDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveRun implements warmup.Observer.
func (c *WarmupCollector) ObserveRun(summary warmup.RunSummary, trigger models.RunTrigger) {
	fallback := "false"
	if summary.Fallback {
		fallback = "true"
	}
	c.runsTotal.WithLabelValues(string(trigger), fallback).Inc()
	for _, r := range summary.Results {
		c.actionsTotal.WithLabelValues(string(r.Type), string(r.Status)).Inc()
	}
	if d := summary.FinishedAt.Sub(summary.StartedAt); d > 0 {
		c.runDuration.Observe(d.Seconds())
	}
	if summary.Frozen {
		c.floodWaits.Inc()
	}
}

// ObserveSkip implements warmup.Observer.
func (c *WarmupCollector) ObserveSkip(code warmup.SkipCode) {
	c.skipsTotal.WithLabelValues(string(code)).Inc()
}

// ObserveTick implements scheduler.TickObserver.
func (c *WarmupCollector) ObserveTick(r scheduler.TickResult) {
	c.tickAccounts.WithLabelValues("due").Set(float64(r.Due))
	c.tickAccounts.WithLabelValues("succeeded").Set(float64(r.Succeeded))
	c.tickAccounts.WithLabelValues("skipped").Set(float64(r.Skipped))
	c.tickAccounts.WithLabelValues("busy").Set(float64(r.Busy))
	c.tickAccounts.WithLabelValues("failed").Set(float64(r.Failed))
	c.tickDuration.Observe(r.Duration.Seconds())
}
