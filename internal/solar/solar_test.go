package solar

import (
	"errors"
	"testing"
	"time"
)

// fixedCalc returns sunrise at 06:30 and sunset at 19:45 local time (UTC-7)
// every day, shifted by one minute per day so tomorrow differs from today.
func fixedCalc(loc *time.Location) Calculator {
	return func(_, _ float64, year int, month time.Month, day int) (time.Time, time.Time) {
		shift := time.Duration(day) * time.Minute
		rise := time.Date(year, month, day, 6, 30, 0, 0, loc).Add(shift)
		set := time.Date(year, month, day, 19, 45, 0, 0, loc).Add(shift)
		return rise.UTC(), set.UTC()
	}
}

func newTestClock(t *testing.T) (*Clock, *time.Location) {
	t.Helper()
	loc := time.FixedZone("MST", -7*3600)
	return NewClock(33.45, -112.07, loc).WithCalculator(fixedCalc(loc)), loc
}

func TestNextWindow_Daylight(t *testing.T) {
	c, loc := newTestClock(t)
	rise := time.Date(2024, 6, 15, 6, 45, 0, 0, loc)
	set := time.Date(2024, 6, 15, 20, 0, 0, 0, loc)

	for _, now := range []time.Time{
		rise,
		rise.Add(time.Second),
		time.Date(2024, 6, 15, 12, 0, 0, 0, loc),
		set.Add(-time.Second),
		set,
	} {
		w, err := c.NextWindow(now)
		if err != nil {
			t.Fatalf("NextWindow(%v): %v", now, err)
		}
		if w.Sleep != 0 || !w.Daylight() {
			t.Errorf("NextWindow(%v).Sleep = %v, want 0", now, w.Sleep)
		}
	}
}

func TestNextWindow_BeforeSunrise(t *testing.T) {
	c, loc := newTestClock(t)
	now := time.Date(2024, 6, 15, 3, 12, 30, 0, loc)
	w, err := c.NextWindow(now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 6, 15, 6, 45, 0, 0, loc).Sub(now)
	if d := w.Sleep - want; d < -time.Second || d > time.Second {
		t.Errorf("Sleep = %v, want %v", w.Sleep, want)
	}
}

func TestNextWindow_AfterSunset(t *testing.T) {
	c, loc := newTestClock(t)
	now := time.Date(2024, 6, 15, 22, 0, 0, 0, loc)
	w, err := c.NextWindow(now)
	if err != nil {
		t.Fatal(err)
	}
	tomorrowRise := time.Date(2024, 6, 16, 6, 46, 0, 0, loc)
	if w.Sleep != tomorrowRise.Sub(now) {
		t.Errorf("Sleep = %v, want %v", w.Sleep, tomorrowRise.Sub(now))
	}
	if !w.Sunset.Equal(time.Date(2024, 6, 15, 20, 0, 0, 0, loc)) {
		t.Errorf("Sunset = %v, want today's sunset", w.Sunset)
	}
}

func TestNextWindow_LocalDateNotUTCDate(t *testing.T) {
	// 23:30 local is already the next day in UTC; the window must still be
	// computed for the local date.
	c, loc := newTestClock(t)
	now := time.Date(2024, 6, 15, 23, 30, 0, 0, loc).UTC()
	w, err := c.NextWindow(now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 6, 16, 6, 46, 0, 0, loc).Sub(now)
	if w.Sleep != want {
		t.Errorf("Sleep = %v, want %v", w.Sleep, want)
	}
}

func TestNextWindow_PolarNight(t *testing.T) {
	loc := time.UTC
	c := NewClock(78.2, 15.6, loc).WithCalculator(func(float64, float64, int, time.Month, int) (time.Time, time.Time) {
		return time.Time{}, time.Time{}
	})
	_, err := c.NextWindow(time.Date(2024, 12, 21, 12, 0, 0, 0, loc))
	if !errors.Is(err, ErrNoDaylight) {
		t.Errorf("err = %v, want ErrNoDaylight", err)
	}
}

func TestTimes_RealCalculator(t *testing.T) {
	loc, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c := NewClock(39.74, -104.99, loc)
	rise, set, err := c.Times(time.Date(2024, 6, 21, 12, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("Times: %v", err)
	}
	if !rise.Before(set) {
		t.Errorf("sunrise %v not before sunset %v", rise, set)
	}
	if rise.Hour() < 4 || rise.Hour() > 7 {
		t.Errorf("sunrise hour = %d, want early morning", rise.Hour())
	}
	if set.Hour() < 19 || set.Hour() > 21 {
		t.Errorf("sunset hour = %d, want evening", set.Hour())
	}
}
