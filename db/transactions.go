package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thatsimonsguy/greenhouse/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// UpdateDeviceStatusWithTx touches only status and last_active. It returns
// sql.ErrNoRows when no device has the id.
func UpdateDeviceStatusWithTx(tx *sql.Tx, id string, status model.DeviceStatus, at time.Time) error {
	res, err := tx.Exec(`UPDATE devices SET status = ?, last_active = ? WHERE id = ?`, string(status), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("update device status: %w", err)
	}
	return requireRow(res, id)
}

func UpdateFanSpeedWithTx(tx *sql.Tx, id string, percent int, at time.Time) error {
	ts := formatTime(at)
	res, err := tx.Exec(`UPDATE devices SET fan_speed = ?, last_active = ?, last_updated = ? WHERE id = ?`, percent, ts, ts, id)
	if err != nil {
		return fmt.Errorf("update fan speed: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("device %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// UpdateDeviceStatus applies the status change and returns the stored record.
func UpdateDeviceStatus(db *sql.DB, id string, status model.DeviceStatus, at time.Time) (model.Device, error) {
	tx, err := StartTransaction(db)
	if err != nil {
		return model.Device{}, err
	}
	if err := UpdateDeviceStatusWithTx(tx, id, status, at); err != nil {
		RollbackTransaction(tx)
		return model.Device{}, err
	}
	d, err := scanDevice(tx.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
	if err != nil {
		RollbackTransaction(tx)
		return model.Device{}, fmt.Errorf("reload device %s: %w", id, err)
	}
	if err := CommitTransaction(tx); err != nil {
		return model.Device{}, err
	}
	return d, nil
}

func UpdateFanSpeed(db *sql.DB, id string, percent int, at time.Time) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := UpdateFanSpeedWithTx(tx, id, percent, at); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

// RecordReading replaces the sensor's latest value and appends a history row.
func RecordReading(db *sql.DB, sensorID string, value float64, at time.Time) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}

	var unit string
	err = tx.QueryRow(`SELECT unit FROM sensors WHERE id = ?`, sensorID).Scan(&unit)
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("failed to get sensor %s: %w", sensorID, err)
	}

	ts := formatTime(at)
	_, err = tx.Exec(`UPDATE sensors SET value = ?, timestamp = ? WHERE id = ?`, value, ts, sensorID)
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("update sensor value: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO sensor_history (id, sensor_id, timestamp, value, unit) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), sensorID, ts, value, unit)
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("insert history: %w", err)
	}
	return CommitTransaction(tx)
}
