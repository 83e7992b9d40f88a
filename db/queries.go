package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/greenhouse/internal/model"
)

// SensorRow is a sensors row as stored. Bounds are not validated here.
type SensorRow struct {
	ID        string
	Kind      string
	Name      string
	Value     float64
	Unit      string
	Min       float64
	Max       float64
	Status    string
	Timestamp time.Time
}

// GetAllSensors returns the latest stored reading of every sensor.
func GetAllSensors(db *sql.DB) ([]SensorRow, error) {
	rows, err := db.Query(`SELECT id, kind, name, value, unit, min, max, status, timestamp FROM sensors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var sensors []SensorRow
	for rows.Next() {
		var s SensorRow
		var ts string
		err = rows.Scan(&s.ID, &s.Kind, &s.Name, &s.Value, &s.Unit, &s.Min, &s.Max, &s.Status, &ts)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		s.Timestamp = parseTime(ts)
		sensors = append(sensors, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensors: %w", err)
	}
	return sensors, nil
}

// GetSensorHistory returns readings for a sensor at or after since, oldest
// first.
func GetSensorHistory(db *sql.DB, sensorID string, since time.Time) ([]model.HistoryPoint, error) {
	rows, err := db.Query(`SELECT timestamp, value, unit FROM sensor_history WHERE sensor_id = ? AND timestamp >= ? ORDER BY timestamp ASC`,
		sensorID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", sensorID, err)
	}
	defer rows.Close()

	var points []model.HistoryPoint
	for rows.Next() {
		var p model.HistoryPoint
		var ts string
		if err := rows.Scan(&ts, &p.Value, &p.Unit); err != nil {
			return nil, fmt.Errorf("failed to scan history point: %w", err)
		}
		p.Timestamp = parseTime(ts)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return points, nil
}

const deviceColumns = `id, name, type, status, battery_level, location, last_active, fan_speed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(r rowScanner) (model.Device, error) {
	var d model.Device
	var status, lastActive string
	var battery, fanSpeed sql.NullInt64
	if err := r.Scan(&d.ID, &d.Name, &d.Kind, &status, &battery, &d.Location, &lastActive, &fanSpeed); err != nil {
		return model.Device{}, err
	}
	d.Status = model.DeviceStatus(status)
	d.BatteryLevel = intFromNull(battery)
	d.LastActive = parseTime(lastActive)
	d.FanSpeed = intFromNull(fanSpeed)
	return d, nil
}

func GetAllDevices(db *sql.DB) ([]model.Device, error) {
	rows, err := db.Query(`SELECT ` + deviceColumns + ` FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}

// GetDeviceByID returns sql.ErrNoRows (wrapped) when the id is unknown.
func GetDeviceByID(db *sql.DB, id string) (model.Device, error) {
	d, err := scanDevice(db.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
	if err != nil {
		return model.Device{}, fmt.Errorf("failed to get device %s: %w", id, err)
	}
	return d, nil
}

const cropColumns = `id, name, variety, planted_date, harvest_date, status, optimal_temp_min, optimal_temp_max, optimal_humidity_min, optimal_humidity_max, location, notes, image`

func scanCrop(r rowScanner) (model.Crop, error) {
	var c model.Crop
	var planted, harvest, status string
	err := r.Scan(&c.ID, &c.Name, &c.Variety, &planted, &harvest, &status,
		&c.OptimalTemp.Min, &c.OptimalTemp.Max, &c.OptimalHumidity.Min, &c.OptimalHumidity.Max,
		&c.Location, &c.Notes, &c.Image)
	if err != nil {
		return model.Crop{}, err
	}
	c.PlantedDate = parseTime(planted)
	c.HarvestDate = parseTime(harvest)
	c.Status = model.CropStatus(status)
	return c, nil
}

func GetAllCrops(db *sql.DB) ([]model.Crop, error) {
	rows, err := db.Query(`SELECT ` + cropColumns + ` FROM crops ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query crops: %w", err)
	}
	defer rows.Close()

	var crops []model.Crop
	for rows.Next() {
		c, err := scanCrop(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crop: %w", err)
		}
		crops = append(crops, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate crops: %w", err)
	}
	return crops, nil
}

func GetCropByID(db *sql.DB, id string) (model.Crop, error) {
	c, err := scanCrop(db.QueryRow(`SELECT `+cropColumns+` FROM crops WHERE id = ?`, id))
	if err != nil {
		return model.Crop{}, fmt.Errorf("failed to get crop %s: %w", id, err)
	}
	return c, nil
}

// GetForecast returns up to limit forecast days, earliest first.
func GetForecast(db *sql.DB, limit int) ([]model.ForecastDay, error) {
	rows, err := db.Query(`SELECT date, condition, temp_min, temp_max, humidity, wind_speed, precipitation FROM weather_forecasts ORDER BY date ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast: %w", err)
	}
	defer rows.Close()

	var days []model.ForecastDay
	for rows.Next() {
		var w model.ForecastDay
		var date, condition string
		err = rows.Scan(&date, &condition, &w.Temperature.Min, &w.Temperature.Max, &w.Humidity, &w.WindSpeed, &w.Precipitation)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast day: %w", err)
		}
		w.Date = parseTime(date)
		w.Condition = model.Condition(condition)
		days = append(days, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate forecast: %w", err)
	}
	return days, nil
}
