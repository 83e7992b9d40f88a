package ventilation

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeSchedule Mode = "schedule"
	ModeManual   Mode = "manual"
	ModeWeather  Mode = "weather"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeSchedule, ModeManual, ModeWeather:
		return true
	default:
		return false
	}
}

const (
	nightCap        = 40
	energySavingCap = 70
	nightStartHour  = 20
	nightEndHour    = 6
)

// ScheduleEntry sets every fan to Speed whenever Spec fires. Spec uses the
// standard five-field cron syntax or descriptors such as "@hourly".
type ScheduleEntry struct {
	Spec  string `json:"spec"`
	Speed int    `json:"speed"`
}

type Settings struct {
	Mode              Mode            `json:"mode"`
	ManualSpeeds      map[string]int  `json:"manual_speeds"`
	BaseSpeed         int             `json:"base_speed"`
	HighSpeed         int             `json:"high_speed"`
	TempThreshold     float64         `json:"temp_threshold"`
	HumidityThreshold float64         `json:"humidity_threshold"`
	NightMode         bool            `json:"night_mode"`
	EnergySaving      bool            `json:"energy_saving"`
	Schedule          []ScheduleEntry `json:"schedule"`
}

func DefaultSettings() Settings {
	return Settings{
		Mode:              ModeAuto,
		ManualSpeeds:      map[string]int{"fan-1": 60, "fan-2": 40},
		BaseSpeed:         40,
		HighSpeed:         80,
		TempThreshold:     25,
		HumidityThreshold: 70,
		NightMode:         true,
		EnergySaving:      true,
		Schedule: []ScheduleEntry{
			{Spec: "0 6 * * *", Speed: 60},
			{Spec: "0 20 * * *", Speed: 30},
		},
	}
}

var ErrInvalidSettings = errors.New("invalid ventilation settings")

func validSpeed(v int) bool { return v >= 0 && v <= 100 }

func (s Settings) Validate() error {
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s.Mode)
	}
	if !validSpeed(s.BaseSpeed) || !validSpeed(s.HighSpeed) {
		return fmt.Errorf("%w: base and high speed must be within 0-100", ErrInvalidSettings)
	}
	for id, v := range s.ManualSpeeds {
		if !validSpeed(v) {
			return fmt.Errorf("%w: manual speed %d for %s out of range", ErrInvalidSettings, v, id)
		}
	}
	for _, e := range s.Schedule {
		if _, err := cron.ParseStandard(e.Spec); err != nil {
			return fmt.Errorf("%w: schedule %q: %v", ErrInvalidSettings, e.Spec, err)
		}
		if !validSpeed(e.Speed) {
			return fmt.Errorf("%w: schedule %q speed %d out of range", ErrInvalidSettings, e.Spec, e.Speed)
		}
	}
	return nil
}

func (s Settings) clone() Settings {
	out := s
	out.ManualSpeeds = make(map[string]int, len(s.ManualSpeeds))
	for k, v := range s.ManualSpeeds {
		out.ManualSpeeds[k] = v
	}
	out.Schedule = append([]ScheduleEntry(nil), s.Schedule...)
	return out
}
