package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func reading(t *testing.T, id string, value, min, max float64, stored model.SensorStatus) model.SensorReading {
	t.Helper()
	r, err := model.NewSensorReading(id, id, value, "u", min, max, now)
	require.NoError(t, err)
	r.Status = stored
	return r
}

func intPtr(v int) *int { return &v }

func testRaw(t *testing.T) Raw {
	return Raw{
		Sensors: []model.SensorReading{
			reading(t, "temp-1", 23, 18, 28, model.StatusCritical),
			reading(t, "humidity-1", 82, 40, 80, model.StatusNormal),
		},
		Devices: []model.Device{
			{ID: "fan-1", Kind: "fan", Status: model.DeviceOnline, FanSpeed: intPtr(60)},
			{ID: "sensor-1", Kind: "sensor", Status: model.DeviceOnline},
		},
		Crops: []model.Crop{{
			ID:          "crop-1",
			PlantedDate: now.AddDate(0, 0, -10),
			HarvestDate: now.AddDate(0, 0, 10),
			Status:      model.CropGrowing,
		}},
		Forecast: []model.ForecastDay{
			{Date: now, Condition: model.ConditionRainy, Temperature: model.Range{Min: 15, Max: 20}, WindSpeed: 15},
			{Date: now.AddDate(0, 0, 1), Condition: model.ConditionSunny, Temperature: model.Range{Min: 19, Max: 27}},
		},
		Series: model.Series{
			SensorID: "temp-1",
			Period:   "day",
			Points:   []model.HistoryPoint{{Timestamp: now, Value: 22.5, Unit: "°C"}},
		},
		Pending: map[string]bool{"fan-1": true},
	}
}

func TestDerive(t *testing.T) {
	snap := Derive(testRaw(t), rules.DefaultPolicy, now)

	require.Len(t, snap.Sensors, 2)
	assert.Equal(t, model.StatusNormal, snap.Sensors[0].Status, "stored status is recomputed")
	assert.Equal(t, model.StatusWarning, snap.Sensors[1].Status)
	assert.Equal(t, 50.0, snap.Sensors[0].Gauge)

	assert.Equal(t, rules.HealthWarning, snap.Health.Severity)

	require.Len(t, snap.Crops, 1)
	assert.Equal(t, 50, snap.Crops[0].Progress)
	assert.Equal(t, 10, snap.Crops[0].DaysRemaining)

	require.NotNil(t, snap.Advice)
	assert.Equal(t, "Rain & Wind Alert", snap.Advice.Title)
	assert.Equal(t, "High Temperature Alert", snap.Forecast[1].Advice.Title)
	assert.True(t, snap.Impact.Wet)

	assert.Equal(t, "temp-1", snap.Chart.SensorID)
	assert.Equal(t, "°C", snap.Chart.Unit)
	require.Len(t, snap.Chart.Points, 1)

	assert.True(t, snap.Devices[0].Pending)
	assert.False(t, snap.Devices[1].Pending)
}

func TestDeriveEmpty(t *testing.T) {
	snap := Derive(Raw{}, rules.DefaultPolicy, now)

	assert.Nil(t, snap.Advice)
	assert.Empty(t, snap.Sensors)
	assert.Equal(t, rules.HealthOptimal, snap.Health.Severity)
	assert.NotNil(t, snap.Chart.Points)
}

func TestDeriveDevicesCopiesPointers(t *testing.T) {
	raw := testRaw(t)
	snap := Derive(raw, rules.DefaultPolicy, now)

	*raw.Devices[0].FanSpeed = 5
	assert.Equal(t, 60, *snap.Devices[0].FanSpeed)
}

func TestSnapshotLookups(t *testing.T) {
	snap := Derive(testRaw(t), rules.DefaultPolicy, now)

	s, ok := snap.Sensor("humidity-1")
	assert.True(t, ok)
	assert.Equal(t, 82.0, s.Value)

	_, ok = snap.Device("nope")
	assert.False(t, ok)

	fans := snap.Fans()
	require.Len(t, fans, 1)
	assert.Equal(t, "fan-1", fans[0].ID)
}

// Lookups work directly on a returned snapshot value.
func TestSnapshotLookupsOnValue(t *testing.T) {
	raw := testRaw(t)

	d, ok := Derive(raw, rules.DefaultPolicy, now).Device("fan-1")
	require.True(t, ok)
	assert.Equal(t, 60, *d.FanSpeed)

	_, ok = Derive(raw, rules.DefaultPolicy, now).Sensor("temp-1")
	assert.True(t, ok)
	assert.Len(t, Derive(raw, rules.DefaultPolicy, now).Fans(), 1)
}

func TestSnapshotJSON(t *testing.T) {
	snap := Derive(testRaw(t), rules.DefaultPolicy, now)
	snap.Phases = map[Slot]Phase{SlotSensors: PhaseSettled}

	b, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded, "sensors")
	assert.Equal(t, "settled", decoded["phases"].(map[string]any)["sensors"])
	assert.Nil(t, decoded["devices"].([]any)[1].(map[string]any)["fan_speed"])
}
