package output

import (
	"math"
	"strconv"
	"strings"
)

// RoundFloat rounds a float to max 6 decimal places
func RoundFloat(f float64) float64 {
	return RoundTo(f, 6)
}

// RoundTo rounds f to the given number of decimal places
func RoundTo(f float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(f*multiplier) / multiplier
}

// FormatFloat formats a float with no trailing zeros
func FormatFloat(f float64) string {
	str := strconv.FormatFloat(RoundFloat(f), 'f', 6, 64)
	str = strings.TrimRight(str, "0")
	return strings.TrimRight(str, ".")
}

// Percentage returns 100*part/total rounded to 2 places, or 0 when total is 0
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return RoundTo(100*float64(part)/float64(total), 2)
}
