package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/greenhouse/internal/coordinator"
	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/port"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
	"github.com/thatsimonsguy/greenhouse/internal/state"
	"github.com/thatsimonsguy/greenhouse/internal/ventilation"
)

type fakeEngine struct {
	snap      state.Snapshot
	stopped   bool
	focused   []string
	dismissed []string
	refreshed int
	fanCalls  map[string]int
}

func (f *fakeEngine) Snapshot() state.Snapshot { return f.snap }

func (f *fakeEngine) Refresh() error {
	if f.stopped {
		return coordinator.ErrNotStarted
	}
	f.refreshed++
	return nil
}

func (f *fakeEngine) Focus(sensorID string, period port.Period) error {
	f.focused = append(f.focused, sensorID+"/"+string(period))
	return nil
}

func (f *fakeEngine) DismissNotice(id string) error {
	f.dismissed = append(f.dismissed, id)
	return nil
}

func (f *fakeEngine) CropDetail(ctx context.Context, cropID string) (state.Crop, error) {
	for _, c := range f.snap.Crops {
		if c.ID == cropID {
			return c, nil
		}
	}
	return state.Crop{}, fmt.Errorf("crop %s: %w", cropID, port.ErrNotFound)
}

func (f *fakeEngine) SetDeviceStatus(ctx context.Context, deviceID string, status model.DeviceStatus) (model.Device, error) {
	switch deviceID {
	case "fan-1":
		return model.Device{ID: deviceID, Status: status}, nil
	case "broken":
		return model.Device{}, fmt.Errorf("set status: %w", port.ErrCommand)
	default:
		return model.Device{}, fmt.Errorf("device %s: %w", deviceID, port.ErrNotFound)
	}
}

func (f *fakeEngine) SetFanSpeed(ctx context.Context, deviceID string, percent int) bool {
	if f.fanCalls == nil {
		f.fanCalls = map[string]int{}
	}
	f.fanCalls[deviceID] = percent
	return deviceID == "fan-1"
}

type fakeVentilation struct {
	settings ventilation.Settings
	fans     ventilation.FanCommander
}

func (f *fakeVentilation) Settings() ventilation.Settings { return f.settings }

func (f *fakeVentilation) UpdateSettings(s ventilation.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.settings = s
	return nil
}

func (f *fakeVentilation) SetMode(m ventilation.Mode) error {
	s := f.settings
	s.Mode = m
	return f.UpdateSettings(s)
}

func (f *fakeVentilation) SetManualSpeed(ctx context.Context, fanID string, percent int) (bool, error) {
	if f.settings.Mode != ventilation.ModeManual {
		return false, ventilation.ErrNotManual
	}
	if percent < 0 || percent > 100 {
		return false, ventilation.ErrInvalidSettings
	}
	return f.fans.SetFanSpeed(ctx, fanID, percent), nil
}

func setupTestServer(t *testing.T) (*Server, *fakeEngine, *fakeVentilation) {
	t.Helper()
	speed := 60
	engine := &fakeEngine{snap: state.Snapshot{
		Sensors: []state.Sensor{{ID: "temp-1", Name: "Temperature", Value: 23.5, Status: model.StatusNormal}},
		Devices: []state.Device{{ID: "fan-1", Type: "fan", FanSpeed: &speed}},
		Crops:   []state.Crop{{ID: "crop-1", Name: "Tomatoes", Progress: 53}},
		Forecast: []state.ForecastDay{
			{Condition: model.ConditionSunny, Advice: rules.Advice{Severity: rules.AdviceOptimal}},
		},
		Advice:  &rules.Advice{Severity: rules.AdviceOptimal, Title: "Optimal Conditions"},
		Health:  rules.Health{Label: "Optimal", Severity: rules.HealthOptimal},
		Notices: []state.Notice{{ID: "n1", Kind: state.NoticeFetchFailed}},
		Chart:   state.Chart{SensorID: "temp-1", Period: "day"},
	}}
	vent := &fakeVentilation{settings: ventilation.DefaultSettings(), fans: engine}
	return NewServer(engine, vent), engine, vent
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestGetState(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/api/state", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "sensors")
	assert.Contains(t, resp, "health")
}

func TestPreflight(t *testing.T) {
	server, _, _ := setupTestServer(t)
	w := do(t, server, http.MethodOptions, "/api/devices/fan-1/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestGetSensor(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/api/sensors/temp-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var sensor state.Sensor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sensor))
	assert.Equal(t, 23.5, sensor.Value)

	w = do(t, server, http.MethodGet, "/api/sensors/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmptyCollectionsEncodeAsArrays(t *testing.T) {
	server, engine, _ := setupTestServer(t)
	engine.snap = state.Snapshot{}

	for _, path := range []string{"/api/sensors", "/api/devices", "/api/crops", "/api/notices"} {
		w := do(t, server, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, "[]", w.Body.String(), path)
	}
}

func TestSetDeviceStatus(t *testing.T) {
	server, _, _ := setupTestServer(t)

	tests := []struct {
		name string
		id   string
		body interface{}
		want int
	}{
		{"valid", "fan-1", DeviceStatusRequest{Status: "offline"}, http.StatusOK},
		{"invalid status", "fan-1", DeviceStatusRequest{Status: "sleeping"}, http.StatusBadRequest},
		{"invalid json", "fan-1", "{invalid", http.StatusBadRequest},
		{"unknown device", "nonexistent", DeviceStatusRequest{Status: "online"}, http.StatusNotFound},
		{"command failed", "broken", DeviceStatusRequest{Status: "online"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodPut, "/api/devices/"+tt.id+"/status", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSetFanSpeed(t *testing.T) {
	server, engine, vent := setupTestServer(t)
	vent.settings.Mode = ventilation.ModeManual

	w := do(t, server, http.MethodPut, "/api/devices/fan-1/fan-speed", map[string]int{"percent": 75})
	assert.Equal(t, http.StatusOK, w.Code)
	var resp FanSpeedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Applied)
	assert.Equal(t, 75, engine.fanCalls["fan-1"])

	w = do(t, server, http.MethodPut, "/api/devices/fan-9/fan-speed", map[string]int{"percent": 75})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = do(t, server, http.MethodPut, "/api/devices/fan-1/fan-speed", map[string]int{"percent": 150})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, server, http.MethodPut, "/api/devices/fan-1/fan-speed", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "percent is required")
}

func TestSetFanSpeedOutsideManualMode(t *testing.T) {
	server, engine, vent := setupTestServer(t)

	for _, mode := range []ventilation.Mode{ventilation.ModeAuto, ventilation.ModeWeather, ventilation.ModeSchedule} {
		vent.settings.Mode = mode
		w := do(t, server, http.MethodPut, "/api/devices/fan-1/fan-speed", map[string]int{"percent": 75})
		assert.Equal(t, http.StatusConflict, w.Code, string(mode))
	}
	assert.Empty(t, engine.fanCalls, "no command is sent outside manual mode")
}

func TestSetFanSpeedWithoutVentilation(t *testing.T) {
	engine := &fakeEngine{}
	server := NewServer(engine, nil)

	w := do(t, server, http.MethodPut, "/api/devices/fan-1/fan-speed", map[string]int{"percent": 30})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, engine.fanCalls["fan-1"])
}

func TestGetCrop(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/api/crops/crop-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, server, http.MethodGet, "/api/crops/crop-404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetForecast(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/api/forecast", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp ForecastResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Days, 1)
	require.NotNil(t, resp.Advice)
	assert.Equal(t, "Optimal Conditions", resp.Advice.Title)
}

func TestSetChart(t *testing.T) {
	server, engine, _ := setupTestServer(t)

	w := do(t, server, http.MethodPut, "/api/chart", ChartRequest{SensorID: "humidity-1", Period: "week"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"humidity-1/week"}, engine.focused)

	w = do(t, server, http.MethodPut, "/api/chart", ChartRequest{SensorID: "humidity-1", Period: "year"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, server, http.MethodPut, "/api/chart", ChartRequest{Period: "day"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDismissNotice(t *testing.T) {
	server, engine, _ := setupTestServer(t)

	w := do(t, server, http.MethodDelete, "/api/notices/n1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"n1"}, engine.dismissed)
}

func TestRefresh(t *testing.T) {
	server, engine, _ := setupTestServer(t)

	w := do(t, server, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, engine.refreshed)

	engine.stopped = true
	w = do(t, server, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestVentilationEndpoints(t *testing.T) {
	server, _, vent := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/api/ventilation", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, server, http.MethodPut, "/api/ventilation/fans/fan-1/speed", map[string]int{"percent": 55})
	assert.Equal(t, http.StatusConflict, w.Code, "auto mode rejects manual speeds")

	w = do(t, server, http.MethodPut, "/api/ventilation/mode", ModeRequest{Mode: "turbo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, server, http.MethodPut, "/api/ventilation/mode", ModeRequest{Mode: "manual"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ventilation.ModeManual, vent.settings.Mode)

	w = do(t, server, http.MethodPut, "/api/ventilation/fans/fan-1/speed", map[string]int{"percent": 55})
	assert.Equal(t, http.StatusOK, w.Code)

	s := ventilation.DefaultSettings()
	s.BaseSpeed = 35
	w = do(t, server, http.MethodPut, "/api/ventilation", s)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 35, vent.settings.BaseSpeed)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, server, http.MethodPost, "/api/sensors", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
