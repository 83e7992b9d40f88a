package sqlport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/db"
	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/port"
	"github.com/thatsimonsguy/greenhouse/internal/synthetic"
)

// Port serves the engine from the sqlite store.
type Port struct {
	db  *sql.DB
	gen *synthetic.Generator
	now func() time.Time

	// fallback enables synthetic history when the store has no rows in range.
	fallback bool
}

func New(dbConn *sql.DB, gen *synthetic.Generator, fallback bool) *Port {
	return &Port{db: dbConn, gen: gen, now: time.Now, fallback: fallback}
}

var _ port.DataPort = (*Port)(nil)

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, port.ErrTransient, err)
}

func (p *Port) FetchSensors(ctx context.Context) ([]model.SensorReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("fetch sensors", err)
	}
	rows, err := db.GetAllSensors(p.db)
	if err != nil {
		return nil, transient("fetch sensors", err)
	}

	out := make([]model.SensorReading, 0, len(rows))
	for _, r := range rows {
		reading, err := model.NewSensorReading(r.ID, r.Name, r.Value, r.Unit, r.Min, r.Max, r.Timestamp)
		if err != nil {
			log.Error().Err(err).Str("sensor_id", r.ID).Msg("Skipping stored sensor with invalid bounds")
			continue
		}
		reading.Status = model.SensorStatus(r.Status)
		out = append(out, reading)
	}
	return out, nil
}

// PeriodStart returns the earliest timestamp included in a period ending at
// now. A month is one calendar month.
func PeriodStart(period port.Period, now time.Time) time.Time {
	switch period {
	case port.PeriodWeek:
		return now.Add(-7 * 24 * time.Hour)
	case port.PeriodMonth:
		return now.AddDate(0, -1, 0)
	default:
		return now.Add(-24 * time.Hour)
	}
}

func (p *Port) FetchHistory(ctx context.Context, sensorID string, period port.Period) (model.Series, error) {
	if err := ctx.Err(); err != nil {
		return model.Series{}, transient("fetch history", err)
	}
	points, err := db.GetSensorHistory(p.db, sensorID, PeriodStart(period, p.now()))
	if err != nil {
		return model.Series{}, transient("fetch history", err)
	}

	if len(points) == 0 && p.fallback {
		log.Debug().Str("sensor_id", sensorID).Str("period", string(period)).Msg("No stored history, using synthetic series")
		return p.gen.Series(sensorID, string(period)), nil
	}
	if points == nil {
		points = []model.HistoryPoint{}
	}
	return model.Series{SensorID: sensorID, Period: string(period), Points: points}, nil
}

func (p *Port) FetchDevices(ctx context.Context) ([]model.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("fetch devices", err)
	}
	devices, err := db.GetAllDevices(p.db)
	if err != nil {
		return nil, transient("fetch devices", err)
	}
	return devices, nil
}

func (p *Port) SetDeviceStatus(ctx context.Context, deviceID string, status model.DeviceStatus) (model.Device, error) {
	if err := ctx.Err(); err != nil {
		return model.Device{}, fmt.Errorf("set device status: %w: %w", port.ErrCommand, err)
	}
	if !status.Valid() {
		return model.Device{}, fmt.Errorf("%w: invalid device status %q", port.ErrCommand, status)
	}

	d, err := db.UpdateDeviceStatus(p.db, deviceID, status, p.now())
	if errors.Is(err, sql.ErrNoRows) {
		return model.Device{}, fmt.Errorf("device %s: %w", deviceID, port.ErrNotFound)
	}
	if err != nil {
		return model.Device{}, fmt.Errorf("set device status: %w: %w", port.ErrCommand, err)
	}
	return d, nil
}

func (p *Port) SetFanSpeed(ctx context.Context, deviceID string, percent int) bool {
	if ctx.Err() != nil || !port.ValidFanSpeed(percent) {
		return false
	}
	if err := db.UpdateFanSpeed(p.db, deviceID, percent, p.now()); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Int("percent", percent).Msg("Fan speed not applied")
		return false
	}
	return true
}

func (p *Port) FetchCrops(ctx context.Context) ([]model.Crop, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("fetch crops", err)
	}
	crops, err := db.GetAllCrops(p.db)
	if err != nil {
		return nil, transient("fetch crops", err)
	}
	return crops, nil
}

func (p *Port) FetchCropByID(ctx context.Context, cropID string) (model.Crop, error) {
	if err := ctx.Err(); err != nil {
		return model.Crop{}, transient("fetch crop", err)
	}
	c, err := db.GetCropByID(p.db, cropID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Crop{}, fmt.Errorf("crop %s: %w", cropID, port.ErrNotFound)
	}
	if err != nil {
		return model.Crop{}, transient("fetch crop", err)
	}
	return c, nil
}

func (p *Port) FetchForecast(ctx context.Context) ([]model.ForecastDay, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient("fetch forecast", err)
	}
	days, err := db.GetForecast(p.db, port.ForecastHorizon)
	if err != nil {
		return nil, transient("fetch forecast", err)
	}
	return days, nil
}
