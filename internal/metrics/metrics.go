package metrics

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/internal/config"
	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/state"
)

// Gauger is the part of the statsd client the recorder uses.
type Gauger interface {
	Gauge(name string, value float64, tags []string, rate float64) error
}

// Recorder emits gauges for every published snapshot. A nil Recorder or
// one without a client does nothing.
type Recorder struct {
	client Gauger
	warn   bool
}

// New dials the DogStatsD agent. When datadog is disabled or the client
// cannot be created it returns a no-op recorder.
func New(cfg config.Datadog) *Recorder {
	if !cfg.Enable {
		return &Recorder{}
	}

	client, err := statsd.New(cfg.AgentAddr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return &Recorder{}
	}

	client.Namespace = cfg.Namespace
	client.Tags = cfg.Tags

	log.Info().
		Str("addr", cfg.AgentAddr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")

	return &Recorder{client: client, warn: true}
}

// NewWithClient wraps an existing client.
func NewWithClient(g Gauger) *Recorder {
	return &Recorder{client: g, warn: true}
}

func (r *Recorder) Gauge(name string, value float64, tags ...string) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Gauge(name, value, tags, 1); err != nil && r.warn {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func statusLevel(s model.SensorStatus) float64 {
	switch s {
	case model.StatusCritical:
		return 2
	case model.StatusWarning:
		return 1
	default:
		return 0
	}
}

// RecordSnapshot emits sensor values and statuses, fan speeds, the overall
// health level and the number of open notices.
func (r *Recorder) RecordSnapshot(snap state.Snapshot) {
	if r == nil || r.client == nil {
		return
	}

	for _, s := range snap.Sensors {
		tags := []string{"sensor:" + s.ID, "kind:" + string(s.Kind)}
		r.Gauge("sensor.value", s.Value, tags...)
		r.Gauge("sensor.status", statusLevel(s.Status), tags...)
	}
	for _, f := range snap.Fans() {
		if f.FanSpeed != nil {
			r.Gauge("fan.speed", float64(*f.FanSpeed), "device:"+f.ID)
		}
	}
	r.Gauge("health.level", float64(snap.Health.Severity.Level()))
	r.Gauge("notices.count", float64(len(snap.Notices)))
}
