package rules

import (
	"math"

	"github.com/thatsimonsguy/greenhouse/internal/model"
)

const DefaultWarningMargin = 0.10

// Policy decides how far outside its operating bounds a reading may drift
// before it is critical. WarningMargin is a fraction of the bounds span.
//
//	normal:   min <= v <= max
//	warning:  outside, by at most WarningMargin*(max-min)
//	critical: further outside than that
type Policy struct {
	WarningMargin float64
}

var DefaultPolicy = Policy{WarningMargin: DefaultWarningMargin}

func (p Policy) Classify(value float64, b model.Bounds) model.SensorStatus {
	if value >= b.Min() && value <= b.Max() {
		return model.StatusNormal
	}

	margin := math.Max(p.WarningMargin, 0) * b.Span()
	if value >= b.Min()-margin && value <= b.Max()+margin {
		return model.StatusWarning
	}
	return model.StatusCritical
}

// Classify applies the default policy.
func Classify(value float64, b model.Bounds) model.SensorStatus {
	return DefaultPolicy.Classify(value, b)
}

// ClassifySensor classifies a raw value against raw bounds, rejecting
// min >= max.
func ClassifySensor(value, min, max float64) (model.SensorStatus, error) {
	b, err := model.NewBounds(min, max)
	if err != nil {
		return "", err
	}
	return Classify(value, b), nil
}

// ClassifyAll returns copies of the readings with Status recomputed.
func (p Policy) ClassifyAll(readings []model.SensorReading) []model.SensorReading {
	out := make([]model.SensorReading, len(readings))
	for i, r := range readings {
		r.Status = p.Classify(r.Value, r.Bounds)
		out[i] = r
	}
	return out
}

// GaugePercent is the position of the reading inside its bounds, clamped
// to 0..100.
func GaugePercent(r model.SensorReading) float64 {
	span := r.Bounds.Span()
	if span <= 0 {
		return 0
	}
	pct := (r.Value - r.Bounds.Min()) / span * 100
	return math.Min(100, math.Max(0, pct))
}
