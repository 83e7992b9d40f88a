package port

import (
	"context"
	"errors"
	"fmt"

	"github.com/thatsimonsguy/greenhouse/internal/model"
)

var (
	// ErrNotFound means the referenced entity id does not exist. Not retried.
	ErrNotFound = errors.New("not found")
	// ErrTransient is a store or network hiccup. Retried by the next poll only.
	ErrTransient = errors.New("transient fetch failure")
	// ErrCommand means a mutating command did not apply.
	ErrCommand = errors.New("command not applied")
)

// ForecastHorizon is the maximum number of forecast days returned.
const ForecastHorizon = 5

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(s), nil
	case "":
		return PeriodDay, nil
	default:
		return "", fmt.Errorf("invalid period %q. Valid periods: day, week, month", s)
	}
}

// DataPort is the only boundary between the engine and storage. Every
// implementation must return the same errors for the same situations.
type DataPort interface {
	FetchSensors(ctx context.Context) ([]model.SensorReading, error)
	FetchHistory(ctx context.Context, sensorID string, period Period) (model.Series, error)
	FetchDevices(ctx context.Context) ([]model.Device, error)
	SetDeviceStatus(ctx context.Context, deviceID string, status model.DeviceStatus) (model.Device, error)
	// SetFanSpeed never fails loudly; false means the speed was not applied.
	SetFanSpeed(ctx context.Context, deviceID string, percent int) bool
	FetchCrops(ctx context.Context) ([]model.Crop, error)
	FetchCropByID(ctx context.Context, cropID string) (model.Crop, error)
	FetchForecast(ctx context.Context) ([]model.ForecastDay, error)
}

func ValidFanSpeed(percent int) bool {
	return percent >= 0 && percent <= 100
}
