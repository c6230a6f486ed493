// Package loopmetrics exports processloop activity as Prometheus metrics.
package loopmetrics

import (
	"os"
	"time"

	"github.com/joeycumines/go-processloop/processloop"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Options configures New.
type Options struct {
	// Namespace prefixes every metric name, defaults to "processloop".
	Namespace string

	// ConstLabels are attached to every metric, e.g. to identify the loop.
	ConstLabels prometheus.Labels

	// Buckets for the tick duration histogram, defaults to
	// prometheus.DefBuckets.
	Buckets []float64
}

// Metrics implements processloop.Observer.
type Metrics struct {
	ticks        *prometheus.CounterVec
	tickDuration prometheus.Histogram
	lastTick     prometheus.Gauge
	updates      *prometheus.CounterVec
	signals      *prometheus.CounterVec
	exits        *prometheus.CounterVec
}

var _ processloop.Observer = (*Metrics)(nil)

// New registers the loop metrics with reg.
func New(reg prometheus.Registerer, opts Options) (*Metrics, error) {
	if opts.Namespace == `` {
		opts.Namespace = "processloop"
	}
	if opts.Buckets == nil {
		opts.Buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "ticks_total",
			Help:        "Number of completed ticks, by result.",
			ConstLabels: opts.ConstLabels,
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "tick_duration_seconds",
			Help:        "Time taken by the tick hook.",
			ConstLabels: opts.ConstLabels,
			Buckets:     opts.Buckets,
		}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "last_tick_timestamp_seconds",
			Help:        "Unix time at which the most recent tick completed.",
			ConstLabels: opts.ConstLabels,
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "updates_total",
			Help:        "Number of update hook runs, by result.",
			ConstLabels: opts.ConstLabels,
		}, []string{"result"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "signals_total",
			Help:        "Number of bound signals received, by name.",
			ConstLabels: opts.ConstLabels,
		}, []string{"signal"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "exits_total",
			Help:        "Number of loop runs ended, by result.",
			ConstLabels: opts.ConstLabels,
		}, []string{"result"}),
	}

	for _, c := range [...]prometheus.Collector{
		m.ticks,
		m.tickDuration,
		m.lastTick,
		m.updates,
		m.signals,
		m.exits,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// expose both results from the start
	for _, vec := range [...]*prometheus.CounterVec{m.ticks, m.updates, m.exits} {
		vec.WithLabelValues(resultOK)
		vec.WithLabelValues(resultError)
	}

	return m, nil
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}

// TickCompleted implements processloop.Observer. It counts the tick by
// result, and records its duration.
func (x *Metrics) TickCompleted(duration time.Duration, err error) {
	x.ticks.WithLabelValues(result(err)).Inc()
	x.tickDuration.Observe(duration.Seconds())
	x.lastTick.SetToCurrentTime()
}

// UpdateCompleted implements processloop.Observer. It counts the update by result.
func (x *Metrics) UpdateCompleted(err error) {
	x.updates.WithLabelValues(result(err)).Inc()
}

// SignalReceived implements processloop.Observer. It counts the signal by name.
func (x *Metrics) SignalReceived(sig os.Signal) {
	x.signals.WithLabelValues(processloop.SignalName(sig)).Inc()
}

// LoopExited implements processloop.Observer. It counts the run by result.
func (x *Metrics) LoopExited(err error) {
	x.exits.WithLabelValues(result(err)).Inc()
}

// WriteTextfile writes everything gathered by g to path, in the format of
// the node exporter's textfile collector. The file is replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
