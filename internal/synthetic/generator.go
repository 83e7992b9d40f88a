package synthetic

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/thatsimonsguy/greenhouse/internal/model"
)

// Profile is the base value and symmetric variance used for a sensor kind.
type Profile struct {
	Base     float64
	Variance float64
	Unit     string
}

var profiles = map[model.SensorKind]Profile{
	model.KindTemperature: {Base: 22, Variance: 3, Unit: "°C"},
	model.KindHumidity:    {Base: 65, Variance: 10, Unit: "%"},
	model.KindCO2:         {Base: 800, Variance: 200, Unit: "ppm"},
	model.KindAirflow:     {Base: 15, Variance: 5, Unit: "m³/min"},
}

func ProfileFor(kind model.SensorKind) Profile {
	if p, ok := profiles[kind]; ok {
		return p
	}
	return profiles[model.KindTemperature]
}

// PointsFor returns how many points a synthetic series has for a period.
func PointsFor(period string) int {
	switch period {
	case "week":
		return 7
	case "month":
		return 30
	default:
		return 24
	}
}

type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

func New(seed int64) *Generator {
	return NewWithClock(rand.New(rand.NewSource(seed)), time.Now)
}

func NewWithClock(rnd *rand.Rand, now func() time.Time) *Generator {
	return &Generator{rnd: rnd, now: now}
}

// Generate returns n points spaced one hour apart, the last one at now.
func (g *Generator) Generate(kind model.SensorKind, n int) []model.HistoryPoint {
	if n <= 0 {
		return []model.HistoryPoint{}
	}

	p := ProfileFor(kind)
	end := g.now()
	points := make([]model.HistoryPoint, n)

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < n; i++ {
		value := p.Base + (g.rnd.Float64()*2-1)*p.Variance
		points[i] = model.HistoryPoint{
			Timestamp: end.Add(-time.Duration(n-i-1) * time.Hour),
			Value:     round1(value),
			Unit:      p.Unit,
		}
	}
	return points
}

// Series wraps Generate for a sensor and period and flags it synthetic.
func (g *Generator) Series(sensorID, period string) model.Series {
	return model.Series{
		SensorID:  sensorID,
		Period:    period,
		Points:    g.Generate(model.KindFromSensorID(sensorID), PointsFor(period)),
		Synthetic: true,
	}
}

// Jitter returns a uniform offset in [-amplitude, amplitude].
func (g *Generator) Jitter(amplitude float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return (g.rnd.Float64()*2 - 1) * amplitude
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
