package carrington

import (
	"math"
	"testing"
	"time"
)

func TestStartJD(t *testing.T) {
	// worked example 29.a of Astronomical Algorithms
	if got := StartJD(1699); math.Abs(got-2444480.7230) > 1e-3 {
		t.Errorf("StartJD(1699) = %f, want 2444480.7230", got)
	}
}

func TestStart(t *testing.T) {
	got := Start(1699)
	want := time.Date(1980, 8, 29, 5, 21, 4, 0, time.UTC)
	if d := got.Sub(want); d < -time.Second || d > time.Second {
		t.Errorf("Start(1699) = %v, want %v", got, want)
	}

	period := Start(2101).Sub(Start(2100)).Hours() / 24
	if period < 27 || period > 27.5 {
		t.Errorf("rotation length %.3f days", period)
	}
}

func TestRoundToDay(t *testing.T) {
	cases := []struct {
		in, want time.Time
	}{
		{time.Date(2010, 8, 9, 14, 48, 0, 0, time.UTC), time.Date(2010, 8, 10, 0, 0, 0, 0, time.UTC)},
		{time.Date(2017, 8, 16, 11, 27, 0, 0, time.UTC), time.Date(2017, 8, 16, 0, 0, 0, 0, time.UTC)},
		{time.Date(2017, 8, 16, 12, 59, 0, 0, time.UTC), time.Date(2017, 8, 16, 0, 0, 0, 0, time.UTC)},
		{time.Date(2017, 12, 31, 13, 0, 0, 0, time.UTC), time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := RoundToDay(tc.in); !got.Equal(tc.want) {
			t.Errorf("RoundToDay(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInterval(t *testing.T) {
	start, end := Interval(2100, true)
	if !start.Equal(time.Date(2010, 8, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if !end.Equal(time.Date(2010, 9, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", end)
	}

	rawStart, rawEnd := Interval(2100, false)
	if !rawStart.Equal(Start(2100)) || !rawEnd.Equal(Start(2101)) {
		t.Errorf("unrounded interval %v - %v", rawStart, rawEnd)
	}
}
