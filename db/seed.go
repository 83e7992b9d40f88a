package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/port/simulated"
)

// SeedDatabase writes the fixture greenhouse plus any history points, keyed
// by sensor id, in one transaction. Existing rows with the same ids are
// replaced.
func SeedDatabase(db *sql.DB, f simulated.Fixture, history map[string][]model.HistoryPoint) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(timeNow())

	for _, s := range f.Sensors {
		_, err = tx.Exec(`INSERT OR REPLACE INTO sensors (id, kind, name, value, unit, min, max, status, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, string(model.KindFromSensorID(s.ID)), s.Name, s.Value, s.Unit, s.Min, s.Max, string(model.StatusNormal), now)
		if err != nil {
			return fmt.Errorf("failed to insert sensor %s: %w", s.ID, err)
		}
	}

	for sensorID, points := range history {
		for _, p := range points {
			_, err = tx.Exec(`INSERT INTO sensor_history (id, sensor_id, timestamp, value, unit) VALUES (?, ?, ?, ?, ?)`,
				uuid.NewString(), sensorID, formatTime(p.Timestamp), p.Value, p.Unit)
			if err != nil {
				return fmt.Errorf("failed to insert history for %s: %w", sensorID, err)
			}
		}
	}

	for _, d := range f.Devices {
		_, err = tx.Exec(`INSERT OR REPLACE INTO devices (id, name, type, status, battery_level, location, last_active, fan_speed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Name, d.Kind, string(d.Status), nullInt(d.BatteryLevel), d.Location, formatTime(d.LastActive), nullInt(d.FanSpeed))
		if err != nil {
			return fmt.Errorf("failed to insert device %s: %w", d.ID, err)
		}
	}

	for _, c := range f.Crops {
		if err := c.Validate(); err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT OR REPLACE INTO crops (id, name, variety, planted_date, harvest_date, status, optimal_temp_min, optimal_temp_max, optimal_humidity_min, optimal_humidity_max, location, notes, image) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Variety, formatTime(c.PlantedDate), formatTime(c.HarvestDate), string(c.Status),
			c.OptimalTemp.Min, c.OptimalTemp.Max, c.OptimalHumidity.Min, c.OptimalHumidity.Max, c.Location, c.Notes, c.Image)
		if err != nil {
			return fmt.Errorf("failed to insert crop %s: %w", c.ID, err)
		}
	}

	if _, err = tx.Exec(`DELETE FROM weather_forecasts`); err != nil {
		return fmt.Errorf("failed to clear forecast: %w", err)
	}
	for _, w := range f.Forecast {
		_, err = tx.Exec(`INSERT INTO weather_forecasts (id, date, condition, temp_min, temp_max, humidity, wind_speed, precipitation) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), formatTime(w.Date), string(w.Condition), w.Temperature.Min, w.Temperature.Max, w.Humidity, w.WindSpeed, w.Precipitation)
		if err != nil {
			return fmt.Errorf("failed to insert forecast for %s: %w", formatTime(w.Date), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}

	log.Info().
		Int("sensors", len(f.Sensors)).
		Int("devices", len(f.Devices)).
		Int("crops", len(f.Crops)).
		Int("forecast_days", len(f.Forecast)).
		Msg("Database seeded")
	return nil
}
