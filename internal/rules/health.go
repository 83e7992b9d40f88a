package rules

import "github.com/thatsimonsguy/greenhouse/internal/model"

type HealthSeverity string

const (
	HealthCritical HealthSeverity = "critical"
	HealthWarning  HealthSeverity = "warning"
	HealthOptimal  HealthSeverity = "optimal"
)

type Health struct {
	Label    string         `json:"label"`
	Severity HealthSeverity `json:"severity"`
}

// Level orders severities for comparisons and gauges.
func (s HealthSeverity) Level() int {
	switch s {
	case HealthCritical:
		return 2
	case HealthWarning:
		return 1
	default:
		return 0
	}
}

// SystemHealth uses the default classification policy.
func SystemHealth(sensors []model.SensorReading, devices []model.Device) Health {
	return DefaultPolicy.SystemHealth(sensors, devices)
}

// SystemHealth re-derives every sensor's status from its value and bounds;
// stored statuses are ignored.
func (p Policy) SystemHealth(sensors []model.SensorReading, devices []model.Device) Health {
	warning := false
	for _, s := range sensors {
		switch p.Classify(s.Value, s.Bounds) {
		case model.StatusCritical:
			return Health{Label: "Critical", Severity: HealthCritical}
		case model.StatusWarning:
			warning = true
		}
	}

	if !warning {
		for _, d := range devices {
			if d.Status == model.DeviceOffline {
				warning = true
				break
			}
		}
	}

	if warning {
		return Health{Label: "Warning", Severity: HealthWarning}
	}
	return Health{Label: "Optimal", Severity: HealthOptimal}
}
