package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const DefaultJob = "mailmerge"

// Config controls where the run's metrics are delivered.
// The run is a short batch job, so metrics are pushed to a Pushgateway at exit
// instead of being scraped.
type Config struct {
	PushURL string `envconfig:"METRICS_PUSH_URL" yaml:"push_url"` // http://pushgateway:9091, disabled when empty
	Job     string `envconfig:"METRICS_JOB" yaml:"job"`
}

// Recorder collects per-run counters. A nil *Recorder is valid and records nothing.
type Recorder struct {
	config   Config
	registry *prometheus.Registry

	messages   *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	duration   prometheus.Histogram
}

func New(config Config) *Recorder {
	if config.Job == "" {
		config.Job = DefaultJob
	}

	r := &Recorder{
		config:   config,
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmerge_messages_total",
				Help: "Send attempts by outcome",
			},
			[]string{"outcome"},
		),
		reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmerge_reconnects_total",
				Help: "Transport reconnects by reason",
			},
			[]string{"reason"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailmerge_send_duration_seconds",
				Help:    "Duration of a single send attempt",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	r.registry.MustRegister(r.messages, r.reconnects, r.duration)

	return r
}

// Registry exposes the collectors, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attempt records one send attempt.
func (r *Recorder) Attempt(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(outcome).Inc()
	r.duration.Observe(d.Seconds())
}

// Reconnect records a reconnect caused by reason.
func (r *Recorder) Reconnect(reason string) {
	if r == nil {
		return
	}
	r.reconnects.WithLabelValues(reason).Inc()
}

// Push sends the collected metrics to the Pushgateway. It is a no-op without PushURL.
func (r *Recorder) Push(ctx context.Context) error {
	if r == nil || r.config.PushURL == "" {
		return nil
	}

	err := push.New(r.config.PushURL, r.config.Job).
		Gatherer(r.registry).
		PushContext(ctx)

	return errors.Wrap(err, "failed to push metrics")
}
