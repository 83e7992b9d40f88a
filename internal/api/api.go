package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/internal/coordinator"
	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/port"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
	"github.com/thatsimonsguy/greenhouse/internal/state"
	"github.com/thatsimonsguy/greenhouse/internal/ventilation"
)

const commandTimeout = 10 * time.Second

// Engine is the part of the coordinator the API drives.
type Engine interface {
	Snapshot() state.Snapshot
	Refresh() error
	Focus(sensorID string, period port.Period) error
	DismissNotice(id string) error
	CropDetail(ctx context.Context, cropID string) (state.Crop, error)
	SetDeviceStatus(ctx context.Context, deviceID string, status model.DeviceStatus) (model.Device, error)
	SetFanSpeed(ctx context.Context, deviceID string, percent int) bool
}

type Ventilation interface {
	Settings() ventilation.Settings
	UpdateSettings(s ventilation.Settings) error
	SetMode(m ventilation.Mode) error
	SetManualSpeed(ctx context.Context, fanID string, percent int) (bool, error)
}

type Server struct {
	engine      Engine
	ventilation Ventilation
	router      *mux.Router
}

type DeviceStatusRequest struct {
	Status string `json:"status"`
}

type FanSpeedRequest struct {
	Percent *int `json:"percent"`
}

type FanSpeedResponse struct {
	DeviceID string `json:"device_id"`
	Percent  int    `json:"percent"`
	Applied  bool   `json:"applied"`
}

type ChartRequest struct {
	SensorID string `json:"sensor_id"`
	Period   string `json:"period"`
}

type ForecastResponse struct {
	Days   []state.ForecastDay `json:"days"`
	Advice *rules.Advice       `json:"advice,omitempty"`
	Impact rules.Impact        `json:"impact"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(engine Engine, vent Ventilation) *Server {
	s := &Server{engine: engine, ventilation: vent}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/state", s.getState).Methods(http.MethodGet)
	api.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)

	api.HandleFunc("/sensors", s.getSensors).Methods(http.MethodGet)
	api.HandleFunc("/sensors/{id}", s.getSensor).Methods(http.MethodGet)

	api.HandleFunc("/devices", s.getDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", s.getDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/status", s.setDeviceStatus).Methods(http.MethodPut)
	api.HandleFunc("/devices/{id}/fan-speed", s.setFanSpeed).Methods(http.MethodPut)

	api.HandleFunc("/crops", s.getCrops).Methods(http.MethodGet)
	api.HandleFunc("/crops/{id}", s.getCrop).Methods(http.MethodGet)

	api.HandleFunc("/forecast", s.getForecast).Methods(http.MethodGet)

	api.HandleFunc("/chart", s.getChart).Methods(http.MethodGet)
	api.HandleFunc("/chart", s.setChart).Methods(http.MethodPut)

	api.HandleFunc("/notices", s.getNotices).Methods(http.MethodGet)
	api.HandleFunc("/notices/{id}", s.dismissNotice).Methods(http.MethodDelete)

	if s.ventilation != nil {
		api.HandleFunc("/ventilation", s.getVentilation).Methods(http.MethodGet)
		api.HandleFunc("/ventilation", s.setVentilation).Methods(http.MethodPut)
		api.HandleFunc("/ventilation/mode", s.setVentilationMode).Methods(http.MethodPut)
		api.HandleFunc("/ventilation/fans/{id}/speed", s.setManualSpeed).Methods(http.MethodPut)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// Handler returns the router wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		s.router.ServeHTTP(w, r)
	})
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("Starting REST API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down API server: %w", err)
		}
		return nil
	}
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, snap.Health)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Refresh(); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) getSensors(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, nonNil(snap.Sensors))
}

func (s *Server) getSensor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap := s.engine.Snapshot()
	sensor, ok := snap.Sensor(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Sensor not found")
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

func (s *Server) getDevices(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, nonNil(snap.Devices))
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap := s.engine.Snapshot()
	device, ok := snap.Device(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) setDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req DeviceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	status := model.DeviceStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid device status. Valid statuses: online, offline, maintenance")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	device, err := s.engine.SetDeviceStatus(ctx, id, status)
	if err != nil {
		log.Error().Err(err).Str("device_id", id).Str("status", req.Status).Msg("Failed to update device status")
		writeEngineError(w, err)
		return
	}

	log.Info().Str("device_id", id).Str("status", req.Status).Msg("Device status updated via API")
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) setFanSpeed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req FanSpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Percent == nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if !port.ValidFanSpeed(*req.Percent) {
		writeError(w, http.StatusBadRequest, "Invalid fan speed. Must be between 0 and 100")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	// Managed fans only take direct speeds in manual mode.
	var applied bool
	if s.ventilation != nil {
		var err error
		applied, err = s.ventilation.SetManualSpeed(ctx, id, *req.Percent)
		if err != nil {
			writeVentilationError(w, err)
			return
		}
	} else {
		applied = s.engine.SetFanSpeed(ctx, id, *req.Percent)
	}
	resp := FanSpeedResponse{DeviceID: id, Percent: *req.Percent, Applied: applied}
	if !applied {
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	log.Info().Str("device_id", id).Int("percent", *req.Percent).Msg("Fan speed updated via API")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getCrops(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, nonNil(snap.Crops))
}

func (s *Server) getCrop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	crop, err := s.engine.CropDetail(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, crop)
}

func (s *Server) getForecast(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, ForecastResponse{
		Days:   nonNil(snap.Forecast),
		Advice: snap.Advice,
		Impact: snap.Impact,
	})
}

func (s *Server) getChart(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, snap.Chart)
}

func (s *Server) setChart(w http.ResponseWriter, r *http.Request) {
	var req ChartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.SensorID == "" {
		writeError(w, http.StatusBadRequest, "sensor_id is required")
		return
	}
	period, err := port.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.Focus(req.SensorID, period); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) getNotices(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, nonNil(snap.Notices))
}

func (s *Server) dismissNotice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.DismissNotice(id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getVentilation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ventilation.Settings())
}

func (s *Server) setVentilation(w http.ResponseWriter, r *http.Request) {
	var settings ventilation.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := s.ventilation.UpdateSettings(settings); err != nil {
		writeVentilationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ventilation.Settings())
}

func (s *Server) setVentilationMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := s.ventilation.SetMode(ventilation.Mode(req.Mode)); err != nil {
		writeVentilationError(w, err)
		return
	}
	log.Info().Str("mode", req.Mode).Msg("Ventilation mode updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setManualSpeed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req FanSpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Percent == nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	applied, err := s.ventilation.SetManualSpeed(ctx, id, *req.Percent)
	if err != nil {
		writeVentilationError(w, err)
		return
	}
	resp := FanSpeedResponse{DeviceID: id, Percent: *req.Percent, Applied: applied}
	if !applied {
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, port.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, coordinator.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, port.ErrCommand), errors.Is(err, port.ErrTransient):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeVentilationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ventilation.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ventilation.ErrNotManual):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("Ventilation update failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}
