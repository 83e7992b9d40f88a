package ventilation

import (
	"time"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
	"github.com/thatsimonsguy/greenhouse/internal/state"
)

func isNight(t time.Time) bool {
	h := t.Hour()
	return h >= nightStartHour || h < nightEndHour
}

// AutoSpeed picks the fan speed for auto mode from the current readings.
func AutoSpeed(s Settings, sensors []state.Sensor, now time.Time) int {
	speed := s.BaseSpeed
	for _, r := range sensors {
		if (r.Kind == model.KindTemperature && r.Value > s.TempThreshold) ||
			(r.Kind == model.KindHumidity && r.Value > s.HumidityThreshold) {
			speed = s.HighSpeed
			break
		}
	}
	if s.EnergySaving && speed > energySavingCap {
		speed = energySavingCap
	}
	if s.NightMode && isNight(now) && speed > nightCap {
		speed = nightCap
	}
	return speed
}

// WeatherSpeed maps today's advisory to a fan speed. It reports false when
// no forecast is available.
func WeatherSpeed(s Settings, advice *rules.Advice) (int, bool) {
	if advice == nil {
		return 0, false
	}
	switch advice.Severity {
	case rules.AdviceCritical:
		return 0, true
	case rules.AdviceWarning:
		return 30, true
	case rules.AdviceNotice:
		return 100, true
	default:
		return s.BaseSpeed, true
	}
}

// Targets returns the wanted speed for each fan in snap. scheduled is the
// speed of the last schedule entry that fired, if any.
func Targets(s Settings, snap state.Snapshot, scheduled *int, now time.Time) map[string]int {
	fans := snap.Fans()
	targets := make(map[string]int, len(fans))

	switch s.Mode {
	case ModeAuto:
		speed := AutoSpeed(s, snap.Sensors, now)
		for _, f := range fans {
			targets[f.ID] = speed
		}
	case ModeWeather:
		if speed, ok := WeatherSpeed(s, snap.Advice); ok {
			for _, f := range fans {
				targets[f.ID] = speed
			}
		}
	case ModeSchedule:
		if scheduled != nil {
			for _, f := range fans {
				targets[f.ID] = *scheduled
			}
		}
	case ModeManual:
		for _, f := range fans {
			if v, ok := s.ManualSpeeds[f.ID]; ok {
				targets[f.ID] = v
			}
		}
	}
	return targets
}
