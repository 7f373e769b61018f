// Package runmetrics derives the normalized running fields (pace, clock strings,
// duration minutes, training type) shared by the pull and push sync paths.
package runmetrics

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TrainingType is the coarse classification of a run derived from its pace.
type TrainingType string

const (
	TrainingTiro    TrainingType = "Tiro"
	TrainingLongo   TrainingType = "Longo"
	TrainingRodagem TrainingType = "Rodagem"
)

// Valid reports whether t is one of the known training types.
func (t TrainingType) Valid() bool {
	switch t {
	case TrainingTiro, TrainingLongo, TrainingRodagem:
		return true
	}
	return false
}

const (
	paceSuffix = "/km"

	// metersPerSecondToMinPerKm converts m/s into min/km (1000 / 60).
	metersPerSecondToMinPerKm = 16.666

	tiroUpperBound  = 4.5
	longoUpperBound = 5.5

	// maxPaceMinutes caps the minutes field so near-zero speeds cannot
	// overflow the formatted pace.
	maxPaceMinutes = 999
)

// FormatError reports a clock or pace string that does not have the MM:SS or
// HH:MM:SS shape.
type FormatError struct {
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed duration %q: expected MM:SS or HH:MM:SS", e.Value)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatClock renders a seconds count as MM:SS, or HH:MM:SS when at least one
// hour is present.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// SpeedToPace converts an average speed in m/s to a "MM:SS/km" pace string.
// Zero or negative speed has no pace and yields "", as does a speed so slow
// the pace would exceed 999 minutes.
//
// Seconds are rounded independently of minutes, so 2.78 m/s renders as
// "05:60/km" rather than carrying into the minute.
func SpeedToPace(speedMs float64) string {
	if speedMs <= 0 || math.IsNaN(speedMs) || math.IsInf(speedMs, 0) {
		return ""
	}
	pace := metersPerSecondToMinPerKm / speedMs
	if pace > maxPaceMinutes {
		return ""
	}
	minutes := math.Floor(pace)
	seconds := math.Round((pace - minutes) * 60)
	return fmt.Sprintf("%02d:%02d%s", int(minutes), int(seconds), paceSuffix)
}

// SpeedToKmh converts m/s to km/h rounded to two decimals.
func SpeedToKmh(speedMs float64) float64 {
	if speedMs <= 0 {
		return 0
	}
	return Round2(speedMs * 3.6)
}

// MetersToKm converts meters to kilometers rounded to two decimals.
func MetersToKm(meters float64) float64 {
	if meters <= 0 {
		return 0
	}
	return Round2(meters / 1000)
}

// ParseDurationToMinutes converts "MM:SS" into m + s/60 and "HH:MM:SS" into
// h*60 + m + s/60. Any other shape returns a *FormatError.
func ParseDurationToMinutes(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, &FormatError{Value: s}
		}
		values = append(values, float64(n))
	}

	switch len(values) {
	case 2:
		return values[0] + values[1]/60, nil
	case 3:
		return values[0]*60 + values[1] + values[2]/60, nil
	default:
		return 0, &FormatError{Value: s}
	}
}

// DurationMinutes returns the nearest whole minute for a clock string. Malformed
// input yields 0 alongside the *FormatError so callers can log and continue.
func DurationMinutes(clock string) (int, error) {
	minutes, err := ParseDurationToMinutes(clock)
	if err != nil {
		return 0, err
	}
	return int(math.Round(minutes)), nil
}

// PaceMinutes parses a "MM:SS" or "MM:SS/km" pace into fractional minutes.
// Both fields must be non-negative integers. Seconds may reach 60 because
// SpeedToPace rounds them independently of the minutes.
func PaceMinutes(pace string) (float64, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(pace), paceSuffix)
	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 {
		return 0, &FormatError{Value: pace}
	}
	minutes, err := strconv.Atoi(parts[0])
	if err != nil || minutes < 0 {
		return 0, &FormatError{Value: pace}
	}
	seconds, err := strconv.Atoi(parts[1])
	if err != nil || seconds < 0 || seconds > 60 {
		return 0, &FormatError{Value: pace}
	}
	return float64(minutes) + float64(seconds)/60, nil
}

// ClassifyTrainingType buckets a pace string: under 4.5 min/km is Tiro, under
// 5.5 is Longo, everything else (including an empty or unparsable pace) is
// Rodagem.
func ClassifyTrainingType(pace string) TrainingType {
	if pace == "" {
		return TrainingRodagem
	}
	minutes, err := PaceMinutes(pace)
	if err != nil {
		return TrainingRodagem
	}
	switch {
	case minutes < tiroUpperBound:
		return TrainingTiro
	case minutes < longoUpperBound:
		return TrainingLongo
	default:
		return TrainingRodagem
	}
}
