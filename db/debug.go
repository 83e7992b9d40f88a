package db

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/port/simulated"
	"github.com/thatsimonsguy/greenhouse/internal/synthetic"
)

const seedHistoryPoints = 24

// SeedCLI creates the schema and loads the demo fixtures plus a day of
// synthetic hourly history for every sensor.
func SeedCLI(dbPath string, seed int64) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	now := timeNow()
	gen := synthetic.NewWithClock(newRand(seed), func() time.Time { return now })
	f := simulated.Fixtures(now)

	history := make(map[string][]model.HistoryPoint, len(f.Sensors))
	for _, s := range f.Sensors {
		history[s.ID] = gen.Generate(model.KindFromSensorID(s.ID), seedHistoryPoints)
	}
	return SeedDatabase(dbConn, f, history)
}

func SetDeviceStatusCLI(dbPath, deviceID, status string) error {
	s := model.DeviceStatus(status)
	if !s.Valid() {
		return fmt.Errorf("invalid device status %q. Valid statuses: online, offline, maintenance", status)
	}

	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	_, err = UpdateDeviceStatus(dbConn, deviceID, s, timeNow())
	return err
}

func SetFanSpeedCLI(dbPath, deviceID string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("fan speed %d out of range 0-100", percent)
	}

	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	return UpdateFanSpeed(dbConn, deviceID, percent, timeNow())
}

func RecordReadingCLI(dbPath, sensorID string, value float64) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	return RecordReading(dbConn, sensorID, value, timeNow())
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
