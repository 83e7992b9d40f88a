package synthetic

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/greenhouse/internal/model"
)

func fixedGenerator(now time.Time) *Generator {
	return NewWithClock(rand.New(rand.NewSource(42)), func() time.Time { return now })
}

func TestGenerateTemperatureDay(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	points := fixedGenerator(now).Generate(model.KindTemperature, 24)

	require.Len(t, points, 24)
	assert.Equal(t, now, points[23].Timestamp)
	for i, p := range points {
		assert.GreaterOrEqual(t, p.Value, 19.0)
		assert.LessOrEqual(t, p.Value, 25.0)
		assert.Equal(t, "°C", p.Unit)
		if i > 0 {
			assert.Equal(t, time.Hour, p.Timestamp.Sub(points[i-1].Timestamp))
		}
	}
}

func TestGenerateProfiles(t *testing.T) {
	now := time.Now()
	g := fixedGenerator(now)

	tests := []struct {
		kind model.SensorKind
		lo   float64
		hi   float64
	}{
		{model.KindHumidity, 55, 75},
		{model.KindCO2, 600, 1000},
		{model.KindAirflow, 10, 20},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			for _, p := range g.Generate(tt.kind, 200) {
				assert.GreaterOrEqual(t, p.Value, tt.lo)
				assert.LessOrEqual(t, p.Value, tt.hi)
				// one decimal
				assert.InDelta(t, math.Round(p.Value*10), p.Value*10, 1e-6)
			}
		})
	}
}

func TestSeriesLengths(t *testing.T) {
	g := fixedGenerator(time.Now())

	assert.Len(t, g.Series("temp-1", "day").Points, 24)
	assert.Len(t, g.Series("humidity-1", "week").Points, 7)
	assert.Len(t, g.Series("co2-1", "month").Points, 30)

	s := g.Series("airflow-1", "day")
	assert.True(t, s.Synthetic)
	assert.Equal(t, "m³/min", s.Points[0].Unit)
	assert.Empty(t, g.Generate(model.KindTemperature, 0))
}

func TestJitterBounded(t *testing.T) {
	g := fixedGenerator(time.Now())
	for i := 0; i < 100; i++ {
		j := g.Jitter(1)
		assert.GreaterOrEqual(t, j, -1.0)
		assert.LessOrEqual(t, j, 1.0)
	}
}
