package state

import (
	"time"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
)

// Raw holds the last data accepted from the port for each collection.
type Raw struct {
	Sensors  []model.SensorReading
	Devices  []model.Device
	Crops    []model.Crop
	Forecast []model.ForecastDay
	Series   model.Series
	// Pending marks devices whose values are optimistic.
	Pending map[string]bool
}

// Derive recomputes every derived field from raw collections. It does not
// touch Phases, Stale, Notices, Version or UpdatedAt.
func Derive(raw Raw, policy rules.Policy, now time.Time) Snapshot {
	classified := policy.ClassifyAll(raw.Sensors)
	snap := Snapshot{
		Sensors:  DeriveSensors(classified),
		Devices:  DeriveDevices(raw.Devices, raw.Pending),
		Crops:    DeriveCrops(raw.Crops, now),
		Forecast: DeriveForecast(raw.Forecast),
		Impact:   rules.WeatherImpact(raw.Forecast),
		Health:   policy.SystemHealth(classified, raw.Devices),
		Chart:    DeriveChart(raw.Series),
	}
	if len(raw.Forecast) > 0 {
		advice := rules.VentilationAdvice(raw.Forecast[0])
		snap.Advice = &advice
	}
	return snap
}

// DeriveSensors expects readings already classified.
func DeriveSensors(readings []model.SensorReading) []Sensor {
	out := make([]Sensor, 0, len(readings))
	for _, r := range readings {
		out = append(out, Sensor{
			ID:        r.ID,
			Kind:      r.Kind,
			Name:      r.Name,
			Value:     r.Value,
			Unit:      r.Unit,
			Min:       r.Bounds.Min(),
			Max:       r.Bounds.Max(),
			Status:    r.Status,
			Gauge:     rules.GaugePercent(r),
			Timestamp: r.Timestamp,
		})
	}
	return out
}

func DeriveDevices(devices []model.Device, pending map[string]bool) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		c := d.Clone()
		out = append(out, Device{
			ID:           c.ID,
			Name:         c.Name,
			Type:         c.Kind,
			Status:       c.Status,
			BatteryLevel: c.BatteryLevel,
			Location:     c.Location,
			LastActive:   c.LastActive,
			FanSpeed:     c.FanSpeed,
			Pending:      pending[c.ID],
		})
	}
	return out
}

func DeriveCrops(crops []model.Crop, now time.Time) []Crop {
	out := make([]Crop, 0, len(crops))
	for _, c := range crops {
		out = append(out, Crop{
			ID:                 c.ID,
			Name:               c.Name,
			Variety:            c.Variety,
			PlantedDate:        c.PlantedDate,
			HarvestDate:        c.HarvestDate,
			Status:             c.Status,
			OptimalTempMin:     c.OptimalTemp.Min,
			OptimalTempMax:     c.OptimalTemp.Max,
			OptimalHumidityMin: c.OptimalHumidity.Min,
			OptimalHumidityMax: c.OptimalHumidity.Max,
			Location:           c.Location,
			Notes:              c.Notes,
			Image:              c.Image,
			Progress:           rules.GrowthProgress(c, now),
			DaysRemaining:      rules.DaysRemaining(c, now),
		})
	}
	return out
}

func DeriveForecast(days []model.ForecastDay) []ForecastDay {
	out := make([]ForecastDay, 0, len(days))
	for _, d := range days {
		out = append(out, ForecastDay{
			Date:          d.Date,
			Condition:     d.Condition,
			TempMin:       d.Temperature.Min,
			TempMax:       d.Temperature.Max,
			Humidity:      d.Humidity,
			WindSpeed:     d.WindSpeed,
			Precipitation: d.Precipitation,
			Advice:        rules.VentilationAdvice(d),
		})
	}
	return out
}

func DeriveChart(series model.Series) Chart {
	chart := Chart{
		SensorID:  series.SensorID,
		Period:    series.Period,
		Synthetic: series.Synthetic,
		Points:    make([]Point, 0, len(series.Points)),
	}
	for _, p := range series.Points {
		chart.Points = append(chart.Points, Point{Timestamp: p.Timestamp, Value: p.Value})
		chart.Unit = p.Unit
	}
	return chart
}
