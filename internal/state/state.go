package state

import (
	"time"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
)

type Slot string

const (
	SlotSensors  Slot = "sensors"
	SlotDevices  Slot = "devices"
	SlotCrops    Slot = "crops"
	SlotForecast Slot = "forecast"
	SlotHistory  Slot = "history"
)

// Slots lists every slot in a stable order.
var Slots = []Slot{SlotSensors, SlotDevices, SlotCrops, SlotForecast, SlotHistory}

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseSettled  Phase = "settled"
)

type NoticeKind string

const (
	NoticeFetchFailed   NoticeKind = "fetch_failed"
	NoticeCommandFailed NoticeKind = "command_failed"
	NoticeNotFound      NoticeKind = "not_found"
)

// Notice is a user-visible failure report.
type Notice struct {
	ID      string     `json:"id"`
	Kind    NoticeKind `json:"kind"`
	Key     string     `json:"key"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

type Sensor struct {
	ID        string             `json:"id"`
	Kind      model.SensorKind   `json:"kind"`
	Name      string             `json:"name"`
	Value     float64            `json:"value"`
	Unit      string             `json:"unit"`
	Min       float64            `json:"min"`
	Max       float64            `json:"max"`
	Status    model.SensorStatus `json:"status"`
	Gauge     float64            `json:"gauge"`
	Timestamp time.Time          `json:"timestamp"`
}

type Device struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	Status       model.DeviceStatus `json:"status"`
	BatteryLevel *int               `json:"battery_level,omitempty"`
	Location     string             `json:"location"`
	LastActive   time.Time          `json:"last_active"`
	FanSpeed     *int               `json:"fan_speed,omitempty"`

	// Pending is set while a command's optimistic value awaits confirmation.
	Pending bool `json:"pending"`
}

type Crop struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Variety            string           `json:"variety"`
	PlantedDate        time.Time        `json:"planted_date"`
	HarvestDate        time.Time        `json:"harvest_date"`
	Status             model.CropStatus `json:"status"`
	OptimalTempMin     float64          `json:"optimal_temp_min"`
	OptimalTempMax     float64          `json:"optimal_temp_max"`
	OptimalHumidityMin float64          `json:"optimal_humidity_min"`
	OptimalHumidityMax float64          `json:"optimal_humidity_max"`
	Location           string           `json:"location"`
	Notes              string           `json:"notes"`
	Image              string           `json:"image,omitempty"`
	Progress           int              `json:"progress"`
	DaysRemaining      int              `json:"days_remaining"`
}

type ForecastDay struct {
	Date          time.Time       `json:"date"`
	Condition     model.Condition `json:"condition"`
	TempMin       float64         `json:"temp_min"`
	TempMax       float64         `json:"temp_max"`
	Humidity      float64         `json:"humidity"`
	WindSpeed     float64         `json:"wind_speed"`
	Precipitation float64         `json:"precipitation"`
	Advice        rules.Advice    `json:"advice"`
}

type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type Chart struct {
	SensorID  string  `json:"sensor_id"`
	Period    string  `json:"period"`
	Unit      string  `json:"unit"`
	Synthetic bool    `json:"synthetic"`
	Points    []Point `json:"points"`
}

// Snapshot is the complete derived state at one instant. A published
// snapshot is never mutated.
type Snapshot struct {
	Sensors   []Sensor       `json:"sensors"`
	Devices   []Device       `json:"devices"`
	Crops     []Crop         `json:"crops"`
	Forecast  []ForecastDay  `json:"forecast"`
	Advice    *rules.Advice  `json:"advice,omitempty"`
	Impact    rules.Impact   `json:"impact"`
	Health    rules.Health   `json:"health"`
	Chart     Chart          `json:"chart"`
	Phases    map[Slot]Phase `json:"phases"`
	Stale     map[Slot]bool  `json:"stale"`
	Notices   []Notice       `json:"notices"`
	Version   uint64         `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Sensor looks up a sensor by id.
func (s Snapshot) Sensor(id string) (Sensor, bool) {
	for _, r := range s.Sensors {
		if r.ID == id {
			return r, true
		}
	}
	return Sensor{}, false
}

func (s Snapshot) Device(id string) (Device, bool) {
	for _, d := range s.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// Fans returns the fan devices in snapshot order.
func (s Snapshot) Fans() []Device {
	var fans []Device
	for _, d := range s.Devices {
		if d.Type == "fan" {
			fans = append(fans, d)
		}
	}
	return fans
}
