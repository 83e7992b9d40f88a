package rules

import (
	"fmt"
	"math"

	"github.com/thatsimonsguy/greenhouse/internal/model"
)

type AdviceSeverity string

const (
	AdviceCritical AdviceSeverity = "critical"
	AdviceWarning  AdviceSeverity = "warning"
	AdviceNotice   AdviceSeverity = "notice"
	AdviceOptimal  AdviceSeverity = "optimal"
)

type Advice struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    AdviceSeverity `json:"severity"`
}

const (
	rainWindLimit = 10.0
	heatLimit     = 26.0
)

// VentilationAdvice evaluates the rules in order and returns the first
// match. A stormy day always reports the storm advisory, whatever the
// temperature.
func VentilationAdvice(day model.ForecastDay) Advice {
	switch {
	case day.Condition == model.ConditionStormy:
		return Advice{
			Title:       "Storm Alert",
			Description: "Close all vents and secure greenhouse. High winds expected.",
			Severity:    AdviceCritical,
		}
	case day.Condition == model.ConditionRainy && day.WindSpeed > rainWindLimit:
		return Advice{
			Title:       "Rain & Wind Alert",
			Description: "Reduce vent openings to 30%. Monitor humidity levels.",
			Severity:    AdviceWarning,
		}
	case day.Temperature.Max > heatLimit:
		return Advice{
			Title:       "High Temperature Alert",
			Description: "Increase ventilation to maximum during peak hours (10AM-3PM).",
			Severity:    AdviceNotice,
		}
	default:
		return Advice{
			Title:       "Optimal Conditions",
			Description: "Standard ventilation settings recommended. No weather concerns.",
			Severity:    AdviceOptimal,
		}
	}
}

// Impact summarises a whole forecast window.
type Impact struct {
	AverageTemp     int    `json:"average_temp"`
	HighTemperature bool   `json:"high_temperature"`
	Wet             bool   `json:"wet"`
	HighWind        bool   `json:"high_wind"`
	TemperatureNote string `json:"temperature_note"`
	MoistureNote    string `json:"moisture_note"`
	WindNote        string `json:"wind_note"`
}

func WeatherImpact(days []model.ForecastDay) Impact {
	var imp Impact
	if len(days) == 0 {
		return imp
	}

	var sum float64
	for _, d := range days {
		sum += (d.Temperature.Min + d.Temperature.Max) / 2
		if d.Temperature.Max > 25 {
			imp.HighTemperature = true
		}
		if d.Condition == model.ConditionRainy || d.Condition == model.ConditionStormy {
			imp.Wet = true
		}
		if d.WindSpeed > 15 {
			imp.HighWind = true
		}
	}
	imp.AverageTemp = int(math.Floor(sum/float64(len(days)) + 0.5))

	if imp.HighTemperature {
		imp.TemperatureNote = fmt.Sprintf("Average temperature is %d°C. High temperatures may require increased ventilation during peak hours.", imp.AverageTemp)
	} else {
		imp.TemperatureNote = fmt.Sprintf("Average temperature is %d°C. Temperatures remain in the optimal range for most crops.", imp.AverageTemp)
	}
	if imp.Wet {
		imp.MoistureNote = "Rainy conditions expected. Monitor greenhouse humidity to prevent excess moisture and potential fungal issues."
	} else {
		imp.MoistureNote = "Dry conditions expected. Ensure adequate irrigation and monitor humidity levels."
	}
	if imp.HighWind {
		imp.WindNote = "High winds expected. Secure greenhouse structures and reduce vent openings when winds exceed 15 km/h."
	} else {
		imp.WindNote = "Wind speeds remain moderate. Standard ventilation protocols are appropriate."
	}
	return imp
}
