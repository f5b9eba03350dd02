package collector

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// SunInfo is the supplementary sunrise/sunset/solar-angle block attached
// to the status surface when latitude/longitude are configured. It is not
// part of the minutely wire contract.
type SunInfo struct {
	SolarAngle float64 `json:"solarAngle"`
	Sunrise    string  `json:"sunrise"`
	Sunset     string  `json:"sunset"`
}

// ComputeSunInfo derives the current solar angle and today's sunrise/
// sunset times for the given coordinates.
func ComputeSunInfo(lat, lon float64) SunInfo {
	now := time.Now()
	times := suncalc.GetTimes(now, lat, lon)
	pos := suncalc.GetPosition(now, lat, lon)

	return SunInfo{
		SolarAngle: pos.Altitude * 180 / math.Pi,
		Sunrise:    times["sunrise"].Value.Format(time.RFC3339),
		Sunset:     times["sunset"].Value.Format(time.RFC3339),
	}
}
