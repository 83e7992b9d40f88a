package ventilation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
	"github.com/thatsimonsguy/greenhouse/internal/state"
	"github.com/thatsimonsguy/greenhouse/internal/store"
)

var (
	noon     = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	midnight = time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
)

type recordingFans struct {
	mu     sync.Mutex
	calls  map[string]int
	reject map[string]bool
}

func (r *recordingFans) SetFanSpeed(ctx context.Context, id string, percent int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[id] = percent
	return !r.reject[id]
}

func intPtr(v int) *int { return &v }

func snapshot(temp, humidity float64, advice *rules.Advice) state.Snapshot {
	return state.Snapshot{
		Sensors: []state.Sensor{
			{ID: "temp-1", Kind: model.KindTemperature, Value: temp},
			{ID: "humidity-1", Kind: model.KindHumidity, Value: humidity},
		},
		Devices: []state.Device{
			{ID: "fan-1", Type: "fan", FanSpeed: intPtr(60)},
			{ID: "fan-2", Type: "fan", FanSpeed: intPtr(40)},
			{ID: "sensor-1", Type: "sensor"},
		},
		Advice: advice,
	}
}

func newController(t *testing.T, fans FanCommander) *Controller {
	t.Helper()
	st := store.New[Settings](filepath.Join(t.TempDir(), "ventilation.json"))
	c, err := New(fans, st)
	require.NoError(t, err)
	c.now = func() time.Time { return noon }
	return c
}

func TestAutoSpeed(t *testing.T) {
	s := DefaultSettings()
	s.EnergySaving = false

	tests := []struct {
		name     string
		temp     float64
		humidity float64
		now      time.Time
		night    bool
		want     int
	}{
		{"within thresholds", 22, 60, noon, false, 40},
		{"hot", 26, 60, noon, false, 80},
		{"humid", 22, 75, noon, false, 80},
		{"threshold is exclusive", 25, 70, noon, false, 40},
		{"night caps", 26, 60, midnight, true, 40},
		{"night mode off", 26, 60, midnight, false, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.NightMode = tt.night
			snap := snapshot(tt.temp, tt.humidity, nil)
			assert.Equal(t, tt.want, AutoSpeed(s, snap.Sensors, tt.now))
		})
	}
}

func TestAutoSpeedEnergySaving(t *testing.T) {
	s := DefaultSettings()
	snap := snapshot(30, 60, nil)
	assert.Equal(t, 70, AutoSpeed(s, snap.Sensors, noon))
}

func TestWeatherSpeed(t *testing.T) {
	s := DefaultSettings()

	tests := []struct {
		severity rules.AdviceSeverity
		want     int
	}{
		{rules.AdviceCritical, 0},
		{rules.AdviceWarning, 30},
		{rules.AdviceNotice, 100},
		{rules.AdviceOptimal, 40},
	}
	for _, tt := range tests {
		got, ok := WeatherSpeed(s, &rules.Advice{Severity: tt.severity})
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, string(tt.severity))
	}

	_, ok := WeatherSpeed(s, nil)
	assert.False(t, ok)
}

func TestTargetsByMode(t *testing.T) {
	s := DefaultSettings()
	snap := snapshot(22, 60, &rules.Advice{Severity: rules.AdviceCritical})

	s.Mode = ModeWeather
	assert.Equal(t, map[string]int{"fan-1": 0, "fan-2": 0}, Targets(s, snap, nil, noon))

	s.Mode = ModeManual
	assert.Equal(t, map[string]int{"fan-1": 60, "fan-2": 40}, Targets(s, snap, nil, noon))

	s.Mode = ModeSchedule
	assert.Empty(t, Targets(s, snap, nil, noon))
	assert.Equal(t, map[string]int{"fan-1": 25, "fan-2": 25}, Targets(s, snap, intPtr(25), noon))
}

func TestApplySkipsFansAtTarget(t *testing.T) {
	fans := &recordingFans{}
	c := newController(t, fans)
	require.NoError(t, c.SetMode(ModeWeather))

	// optimal weather: base speed 40, fan-2 is already there
	results, err := c.Apply(context.Background(), snapshot(22, 60, &rules.Advice{Severity: rules.AdviceOptimal}))
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"fan-1": true}, results)
	assert.Equal(t, map[string]int{"fan-1": 40}, fans.calls)
}

func TestApplyReportsPerFanFailure(t *testing.T) {
	fans := &recordingFans{reject: map[string]bool{"fan-2": true}}
	c := newController(t, fans)
	require.NoError(t, c.SetMode(ModeWeather))

	results, err := c.Apply(context.Background(), snapshot(22, 60, &rules.Advice{Severity: rules.AdviceNotice}))
	assert.Error(t, err)
	assert.Equal(t, map[string]bool{"fan-1": true, "fan-2": false}, results)
}

func TestRejectedTargetBacksOff(t *testing.T) {
	fans := &recordingFans{reject: map[string]bool{"fan-2": true}}
	c := newController(t, fans)
	require.NoError(t, c.SetMode(ModeWeather))
	snap := snapshot(22, 60, &rules.Advice{Severity: rules.AdviceNotice})

	_, err := c.Apply(context.Background(), snap)
	assert.Error(t, err)

	fans.calls = nil
	results, err := c.Apply(context.Background(), snap)
	assert.NoError(t, err)
	assert.Equal(t, map[string]bool{"fan-1": true}, results, "fan-2 is not retried yet")

	c.now = func() time.Time { return noon.Add(retryBackoff) }
	fans.calls = nil
	results, err = c.Apply(context.Background(), snap)
	assert.Error(t, err)
	assert.Equal(t, map[string]bool{"fan-1": true, "fan-2": false}, results)
}

func TestManualSpeedOnlyInManualMode(t *testing.T) {
	fans := &recordingFans{}
	c := newController(t, fans)

	_, err := c.SetManualSpeed(context.Background(), "fan-1", 75)
	assert.ErrorIs(t, err, ErrNotManual)

	require.NoError(t, c.SetMode(ModeManual))
	ok, err := c.SetManualSpeed(context.Background(), "fan-1", 75)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 75, fans.calls["fan-1"])
	assert.Equal(t, 75, c.Settings().ManualSpeeds["fan-1"])

	_, err = c.SetManualSpeed(context.Background(), "fan-1", 120)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestConcurrentManualSpeedsAreAllKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ventilation.json")
	c, err := New(&recordingFans{}, store.New[Settings](path))
	require.NoError(t, err)
	require.NoError(t, c.SetMode(ModeManual))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.SetManualSpeed(context.Background(), fmt.Sprintf("fan-%d", i+10), i)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	speeds := c.Settings().ManualSpeeds
	for i := 0; i < 20; i++ {
		assert.Equal(t, i, speeds[fmt.Sprintf("fan-%d", i+10)])
	}

	reloaded, err := New(&recordingFans{}, store.New[Settings](path))
	require.NoError(t, err)
	assert.Equal(t, speeds, reloaded.Settings().ManualSpeeds)
}

func TestSettingsPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ventilation.json")
	st := store.New[Settings](path)

	c, err := New(&recordingFans{}, st)
	require.NoError(t, err)
	s := c.Settings()
	s.Mode = ModeSchedule
	s.TempThreshold = 27
	s.Schedule = []ScheduleEntry{{Spec: "@hourly", Speed: 50}}
	require.NoError(t, c.UpdateSettings(s))

	reloaded, err := New(&recordingFans{}, store.New[Settings](path))
	require.NoError(t, err)
	got := reloaded.Settings()
	assert.Equal(t, ModeSchedule, got.Mode)
	assert.Equal(t, 27.0, got.TempThreshold)
	assert.Equal(t, []ScheduleEntry{{Spec: "@hourly", Speed: 50}}, got.Schedule)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"mode", func(s *Settings) { s.Mode = "turbo" }},
		{"base speed", func(s *Settings) { s.BaseSpeed = -1 }},
		{"manual speed", func(s *Settings) { s.ManualSpeeds["fan-1"] = 101 }},
		{"cron spec", func(s *Settings) { s.Schedule = []ScheduleEntry{{Spec: "every tuesday", Speed: 10}} }},
		{"schedule speed", func(s *Settings) { s.Schedule = []ScheduleEntry{{Spec: "@daily", Speed: 300}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
		})
	}
	assert.NoError(t, DefaultSettings().Validate())
}

func TestScheduleFire(t *testing.T) {
	fans := &recordingFans{}
	c := newController(t, fans)
	require.NoError(t, c.SetMode(ModeSchedule))

	c.mu.Lock()
	snap := snapshot(22, 60, nil)
	c.last = &snap
	c.mu.Unlock()

	c.fire("@hourly", 15)
	assert.Equal(t, map[string]int{"fan-1": 15, "fan-2": 15}, fans.calls)

	require.NoError(t, c.SetMode(ModeAuto))
	fans.calls = nil
	c.fire("@hourly", 90)
	assert.Nil(t, fans.calls, "schedule ignored outside schedule mode")
}

func TestObserveKeepsNewest(t *testing.T) {
	c := newController(t, &recordingFans{})

	first := snapshot(20, 50, nil)
	first.Version = 1
	second := snapshot(21, 50, nil)
	second.Version = 2
	c.Observe(first)
	c.Observe(second)

	got := <-c.snapshots
	assert.Equal(t, uint64(2), got.Version)
}

func TestRunAppliesObservedSnapshots(t *testing.T) {
	fans := &recordingFans{}
	c := newController(t, fans)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	c.Observe(snapshot(22, 60, nil))
	require.Eventually(t, func() bool {
		fans.mu.Lock()
		defer fans.mu.Unlock()
		return fans.calls["fan-1"] == 40
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
