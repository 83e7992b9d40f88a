package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrInvalidBounds = errors.New("invalid operating bounds")

type SensorKind string

const (
	KindTemperature SensorKind = "temperature"
	KindHumidity    SensorKind = "humidity"
	KindCO2         SensorKind = "co2"
	KindAirflow     SensorKind = "airflow"
)

// KindFromSensorID maps a sensor id such as "temp-1" to its kind. Unknown
// prefixes are treated as temperature.
func KindFromSensorID(id string) SensorKind {
	prefix, _, _ := strings.Cut(id, "-")
	switch prefix {
	case "humidity":
		return KindHumidity
	case "co2":
		return KindCO2
	case "airflow":
		return KindAirflow
	default:
		return KindTemperature
	}
}

type SensorStatus string

const (
	StatusNormal   SensorStatus = "normal"
	StatusWarning  SensorStatus = "warning"
	StatusCritical SensorStatus = "critical"
)

type DeviceStatus string

const (
	DeviceOnline      DeviceStatus = "online"
	DeviceOffline     DeviceStatus = "offline"
	DeviceMaintenance DeviceStatus = "maintenance"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceOnline, DeviceOffline, DeviceMaintenance:
		return true
	default:
		return false
	}
}

type CropStatus string

const (
	CropGrowing   CropStatus = "growing"
	CropHarvested CropStatus = "harvested"
	CropIssue     CropStatus = "issue"
)

type Condition string

const (
	ConditionSunny  Condition = "sunny"
	ConditionCloudy Condition = "cloudy"
	ConditionRainy  Condition = "rainy"
	ConditionStormy Condition = "stormy"
)

// Bounds is an operating range with Min strictly below Max. The zero value
// is not a valid range; use NewBounds.
type Bounds struct {
	min float64
	max float64
}

func NewBounds(min, max float64) (Bounds, error) {
	if !(min < max) {
		return Bounds{}, fmt.Errorf("%w: min %.2f must be below max %.2f", ErrInvalidBounds, min, max)
	}
	return Bounds{min: min, max: max}, nil
}

func (b Bounds) Min() float64  { return b.min }
func (b Bounds) Max() float64  { return b.max }
func (b Bounds) Span() float64 { return b.max - b.min }

type SensorReading struct {
	ID        string
	Kind      SensorKind
	Name      string
	Value     float64
	Unit      string
	Bounds    Bounds
	Status    SensorStatus // advisory; recomputed by rules.Classify
	Timestamp time.Time
}

func NewSensorReading(id, name string, value float64, unit string, min, max float64, ts time.Time) (SensorReading, error) {
	b, err := NewBounds(min, max)
	if err != nil {
		return SensorReading{}, fmt.Errorf("sensor %s: %w", id, err)
	}
	return SensorReading{
		ID:        id,
		Kind:      KindFromSensorID(id),
		Name:      name,
		Value:     value,
		Unit:      unit,
		Bounds:    b,
		Timestamp: ts,
	}, nil
}

type Device struct {
	ID           string
	Name         string
	Kind         string // fan, sensor, ...
	Status       DeviceStatus
	BatteryLevel *int
	Location     string
	LastActive   time.Time
	FanSpeed     *int
}

func (d Device) IsFan() bool { return d.Kind == "fan" }

// Clone copies the device including its optional fields.
func (d Device) Clone() Device {
	out := d
	if d.BatteryLevel != nil {
		v := *d.BatteryLevel
		out.BatteryLevel = &v
	}
	if d.FanSpeed != nil {
		v := *d.FanSpeed
		out.FanSpeed = &v
	}
	return out
}

type Range struct {
	Min float64
	Max float64
}

type Crop struct {
	ID              string
	Name            string
	Variety         string
	PlantedDate     time.Time
	HarvestDate     time.Time
	Status          CropStatus
	OptimalTemp     Range
	OptimalHumidity Range
	Location        string
	Notes           string
	Image           string
}

func (c Crop) Validate() error {
	if c.PlantedDate.After(c.HarvestDate) {
		return fmt.Errorf("crop %s: planted date %s is after harvest date %s",
			c.ID, c.PlantedDate.Format(time.DateOnly), c.HarvestDate.Format(time.DateOnly))
	}
	return nil
}

type ForecastDay struct {
	Date          time.Time
	Condition     Condition
	Temperature   Range
	Humidity      float64
	WindSpeed     float64
	Precipitation float64
}

// SortForecast orders days by date ascending in place.
func SortForecast(days []ForecastDay) {
	sort.SliceStable(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
}

type HistoryPoint struct {
	Timestamp time.Time
	Value     float64
	Unit      string
}

type Series struct {
	SensorID  string
	Period    string
	Points    []HistoryPoint
	Synthetic bool
}
