package simulated

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/port"
	"github.com/thatsimonsguy/greenhouse/internal/synthetic"
)

const sensorJitter = 1.0

// Port is the in-memory DataPort. Sensor values are re-jittered on every
// fetch; history is always synthetic.
type Port struct {
	mu      sync.Mutex
	fixture Fixture
	gen     *synthetic.Generator
	latency time.Duration
	now     func() time.Time
}

func New(gen *synthetic.Generator, latency time.Duration) *Port {
	return NewWithFixture(Fixtures(time.Now()), gen, latency, time.Now)
}

func NewWithFixture(f Fixture, gen *synthetic.Generator, latency time.Duration, now func() time.Time) *Port {
	return &Port{
		fixture: f,
		gen:     gen,
		latency: latency,
		now:     now,
	}
}

var _ port.DataPort = (*Port)(nil)

func (p *Port) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", port.ErrTransient, err)
	}
	if p.latency <= 0 {
		return nil
	}
	t := time.NewTimer(p.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", port.ErrTransient, ctx.Err())
	case <-t.C:
		return nil
	}
}

func (p *Port) FetchSensors(ctx context.Context) ([]model.SensorReading, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]model.SensorReading, 0, len(p.fixture.Sensors))
	for _, s := range p.fixture.Sensors {
		r, err := model.NewSensorReading(s.ID, s.Name, s.Value+p.gen.Jitter(sensorJitter), s.Unit, s.Min, s.Max, now)
		if err != nil {
			log.Error().Err(err).Str("sensor_id", s.ID).Msg("Skipping simulated sensor with invalid bounds")
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *Port) FetchHistory(ctx context.Context, sensorID string, period port.Period) (model.Series, error) {
	if err := p.wait(ctx); err != nil {
		return model.Series{}, err
	}
	return p.gen.Series(sensorID, string(period)), nil
}

func (p *Port) FetchDevices(ctx context.Context) ([]model.Device, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Device, len(p.fixture.Devices))
	for i, d := range p.fixture.Devices {
		out[i] = d.Clone()
	}
	return out, nil
}

func (p *Port) findDevice(id string) int {
	for i := range p.fixture.Devices {
		if p.fixture.Devices[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Port) SetDeviceStatus(ctx context.Context, deviceID string, status model.DeviceStatus) (model.Device, error) {
	if err := p.wait(ctx); err != nil {
		return model.Device{}, fmt.Errorf("%w: %w", port.ErrCommand, err)
	}
	if !status.Valid() {
		return model.Device{}, fmt.Errorf("%w: invalid device status %q", port.ErrCommand, status)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.findDevice(deviceID)
	if i < 0 {
		return model.Device{}, fmt.Errorf("device %s: %w", deviceID, port.ErrNotFound)
	}
	p.fixture.Devices[i].Status = status
	p.fixture.Devices[i].LastActive = p.now()
	return p.fixture.Devices[i].Clone(), nil
}

func (p *Port) SetFanSpeed(ctx context.Context, deviceID string, percent int) bool {
	if err := p.wait(ctx); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("Fan speed command abandoned")
		return false
	}
	if !port.ValidFanSpeed(percent) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.findDevice(deviceID)
	if i < 0 {
		log.Warn().Str("device_id", deviceID).Msg("Fan speed command for unknown device")
		return false
	}
	speed := percent
	p.fixture.Devices[i].FanSpeed = &speed
	p.fixture.Devices[i].LastActive = p.now()
	return true
}

func (p *Port) FetchCrops(ctx context.Context) ([]model.Crop, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Crop(nil), p.fixture.Crops...), nil
}

func (p *Port) FetchCropByID(ctx context.Context, cropID string) (model.Crop, error) {
	if err := p.wait(ctx); err != nil {
		return model.Crop{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.fixture.Crops {
		if c.ID == cropID {
			return c, nil
		}
	}
	return model.Crop{}, fmt.Errorf("crop %s: %w", cropID, port.ErrNotFound)
}

func (p *Port) FetchForecast(ctx context.Context) ([]model.ForecastDay, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	days := append([]model.ForecastDay(nil), p.fixture.Forecast...)
	p.mu.Unlock()

	model.SortForecast(days)
	if len(days) > port.ForecastHorizon {
		days = days[:port.ForecastHorizon]
	}
	return days, nil
}
