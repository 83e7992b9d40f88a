package rules

import (
	"math"
	"time"

	"github.com/thatsimonsguy/greenhouse/internal/model"
)

// GrowthProgress returns 0..100. Harvested crops, and crops whose harvest
// date has been reached, are always 100.
func GrowthProgress(c model.Crop, now time.Time) int {
	if c.Status == model.CropHarvested || !now.Before(c.HarvestDate) {
		return 100
	}

	span := c.HarvestDate.Sub(c.PlantedDate)
	if span <= 0 {
		return 0
	}

	elapsed := now.Sub(c.PlantedDate)
	pct := math.Floor(float64(elapsed)/float64(span)*100 + 0.5)
	return int(math.Min(100, math.Max(0, pct)))
}

// DaysRemaining is the number of whole days, rounded up, until harvest.
func DaysRemaining(c model.Crop, now time.Time) int {
	diff := c.HarvestDate.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}
