// Package carrington converts Carrington rotation numbers to UTC times.
package carrington

import (
	"math"
	"time"
)

// julianUnixEpoch is the Julian date of 1970-01-01T00:00:00Z.
const julianUnixEpoch = 2440587.5

// StartJD returns the Julian ephemeris date at which rotation cr begins,
// using the mean synodic period with Meeus' periodic correction
// (Astronomical Algorithms, ch. 29). The result is accurate to a few
// minutes, well below the daily sampling of the pipeline.
func StartJD(cr int) float64 {
	c := float64(cr)
	m := (281.96 + 26.882476*c) * math.Pi / 180
	return 2398140.2270 + 27.2752316*c +
		0.1454*math.Sin(m) - 0.0085*math.Sin(2*m) - 0.0141*math.Cos(2*m)
}

// Start returns the UTC time at which rotation cr begins, to the second.
func Start(cr int) time.Time {
	seconds := (StartJD(cr) - julianUnixEpoch) * 86400
	return time.Unix(int64(math.Round(seconds)), 0).UTC()
}

// RoundToDay moves t to midnight of its day, or of the next day when t is
// past noon.
func RoundToDay(t time.Time) time.Time {
	if t.Hour() > 12 {
		t = t.AddDate(0, 0, 1)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Interval returns the observation window [start, end) of rotation cr.
func Interval(cr int, roundToDay bool) (time.Time, time.Time) {
	start, end := Start(cr), Start(cr+1)
	if roundToDay {
		start, end = RoundToDay(start), RoundToDay(end)
	}
	return start, end
}
