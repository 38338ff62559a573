package domain

import (
	"fmt"
	"math"
)

const metersToMiles = 0.000621371

// MetersToMiles converts a road distance in meters to statute miles.
func MetersToMiles(meters float64) float64 { return meters * metersToMiles }

// FormatDistance renders meters as miles with one decimal, e.g. "3.2 mi".
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.1f mi", MetersToMiles(meters))
}

// FormatDuration renders minutes as "Xh Ym" from one hour up and "X mins" below.
func FormatDuration(minutes float64) string {
	total := int(math.Round(minutes))
	if total < 0 {
		total = 0
	}
	if total >= 60 {
		return fmt.Sprintf("%dh %dm", total/60, total%60)
	}
	return fmt.Sprintf("%d mins", total)
}
