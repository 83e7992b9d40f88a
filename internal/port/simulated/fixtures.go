package simulated

import (
	"time"

	"github.com/thatsimonsguy/greenhouse/internal/model"
)

// SensorFixture is a sensor definition before its bounds are validated.
type SensorFixture struct {
	ID    string
	Name  string
	Value float64
	Unit  string
	Min   float64
	Max   float64
}

type Fixture struct {
	Sensors  []SensorFixture
	Devices  []model.Device
	Crops    []model.Crop
	Forecast []model.ForecastDay
}

func intPtr(v int) *int { return &v }

// Fixtures returns the demo greenhouse. Crop and forecast dates are
// relative to now so growth progress and advice stay meaningful.
func Fixtures(now time.Time) Fixture {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	return Fixture{
		Sensors: []SensorFixture{
			{ID: "temp-1", Name: "Temperature", Value: 23.5, Unit: "°C", Min: 18, Max: 28},
			{ID: "humidity-1", Name: "Humidity", Value: 68, Unit: "%", Min: 40, Max: 80},
			{ID: "co2-1", Name: "CO₂ Level", Value: 850, Unit: "ppm", Min: 400, Max: 1000},
			{ID: "airflow-1", Name: "Air Flow", Value: 12.3, Unit: "m³/min", Min: 8, Max: 20},
		},
		Devices: []model.Device{
			{ID: "fan-1", Name: "Main Ventilation Fan", Kind: "fan", Status: model.DeviceOnline, BatteryLevel: intPtr(87), Location: "Section A", LastActive: now, FanSpeed: intPtr(60)},
			{ID: "fan-2", Name: "Secondary Fan", Kind: "fan", Status: model.DeviceOnline, BatteryLevel: intPtr(92), Location: "Section B", LastActive: now, FanSpeed: intPtr(40)},
			{ID: "sensor-1", Name: "Environment Sensor 1", Kind: "sensor", Status: model.DeviceOnline, BatteryLevel: intPtr(65), Location: "Section A", LastActive: now},
			{ID: "sensor-2", Name: "Environment Sensor 2", Kind: "sensor", Status: model.DeviceOnline, BatteryLevel: intPtr(78), Location: "Section B", LastActive: now},
		},
		Crops: []model.Crop{
			{
				ID: "crop-1", Name: "Tomatoes", Variety: "Roma",
				PlantedDate: today.AddDate(0, 0, -40), HarvestDate: today.AddDate(0, 0, 36),
				Status:      model.CropGrowing,
				OptimalTemp: model.Range{Min: 20, Max: 25}, OptimalHumidity: model.Range{Min: 60, Max: 80},
				Location: "Section A", Notes: "Growing well, needs more calcium",
			},
			{
				ID: "crop-2", Name: "Lettuce", Variety: "Butterhead",
				PlantedDate: today.AddDate(0, 0, -24), HarvestDate: today.AddDate(0, 0, 20),
				Status:      model.CropGrowing,
				OptimalTemp: model.Range{Min: 15, Max: 22}, OptimalHumidity: model.Range{Min: 50, Max: 70},
				Location: "Section B", Notes: "Growing faster than expected",
			},
			{
				ID: "crop-3", Name: "Cucumbers", Variety: "English",
				PlantedDate: today.AddDate(0, 0, -35), HarvestDate: today.AddDate(0, 0, 38),
				Status:      model.CropGrowing,
				OptimalTemp: model.Range{Min: 21, Max: 28}, OptimalHumidity: model.Range{Min: 70, Max: 90},
				Location: "Section C", Notes: "Need support for climbing",
			},
		},
		Forecast: []model.ForecastDay{
			{Date: today, Condition: model.ConditionSunny, Temperature: model.Range{Min: 18, Max: 25}, Humidity: 65, WindSpeed: 10, Precipitation: 0},
			{Date: today.AddDate(0, 0, 1), Condition: model.ConditionCloudy, Temperature: model.Range{Min: 16, Max: 22}, Humidity: 72, WindSpeed: 8, Precipitation: 20},
			{Date: today.AddDate(0, 0, 2), Condition: model.ConditionRainy, Temperature: model.Range{Min: 15, Max: 20}, Humidity: 85, WindSpeed: 15, Precipitation: 60},
			{Date: today.AddDate(0, 0, 3), Condition: model.ConditionCloudy, Temperature: model.Range{Min: 17, Max: 23}, Humidity: 78, WindSpeed: 12, Precipitation: 10},
			{Date: today.AddDate(0, 0, 4), Condition: model.ConditionSunny, Temperature: model.Range{Min: 19, Max: 26}, Humidity: 60, WindSpeed: 7, Precipitation: 0},
		},
	}
}
