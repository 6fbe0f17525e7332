// Package solar computes daylight windows for a fixed location.
package solar

import (
	"errors"
	"fmt"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// ErrNoDaylight is returned for dates on which the sun does not rise or set
// at the configured latitude.
var ErrNoDaylight = errors.New("no sunrise or sunset on this date")

// ErrNoWindowMatched indicates the daylight checks were not exhaustive. It
// cannot happen for a consistent sunrise/sunset pair.
var ErrNoWindowMatched = errors.New("no daylight window condition matched")

// Calculator returns sunrise and sunset for a calendar day. The zero time
// means the event does not occur.
type Calculator func(latitude, longitude float64, year int, month time.Month, day int) (time.Time, time.Time)

// Window describes today's daylight and how long to wait for the next one.
type Window struct {
	Sunrise time.Time
	Sunset  time.Time
	// Sleep is zero while it is daylight.
	Sleep time.Duration
}

// Daylight reports whether the window is open now.
func (w Window) Daylight() bool { return w.Sleep == 0 }

// Clock computes sunrise/sunset for one location.
type Clock struct {
	latitude  float64
	longitude float64
	loc       *time.Location
	calc      Calculator
}

// NewClock creates a clock for the given coordinates. Dates are taken in loc.
func NewClock(latitude, longitude float64, loc *time.Location) *Clock {
	return &Clock{
		latitude:  latitude,
		longitude: longitude,
		loc:       loc,
		calc:      sunrise.SunriseSunset,
	}
}

// WithCalculator replaces the solar calculator.
func (c *Clock) WithCalculator(calc Calculator) *Clock {
	c.calc = calc
	return c
}

// Location returns the clock's timezone.
func (c *Clock) Location() *time.Location { return c.loc }

// Times returns sunrise and sunset for the local calendar day containing date.
func (c *Clock) Times(date time.Time) (sunrise, sunset time.Time, err error) {
	y, m, d := date.In(c.loc).Date()
	rise, set := c.calc(c.latitude, c.longitude, y, m, d)
	if rise.IsZero() || set.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%04d-%02d-%02d at %.4f,%.4f: %w",
			y, m, d, c.latitude, c.longitude, ErrNoDaylight)
	}
	return rise.In(c.loc), set.In(c.loc), nil
}

// NextWindow returns today's window and the time left until daylight:
// zero inside [sunrise, sunset], the wait for today's sunrise before it, and
// the wait for tomorrow's sunrise after sunset.
func (c *Clock) NextWindow(now time.Time) (Window, error) {
	rise, set, err := c.Times(now)
	if err != nil {
		return Window{}, err
	}
	w := Window{Sunrise: rise, Sunset: set}

	switch {
	case !now.Before(rise) && !now.After(set):
		return w, nil
	case now.Before(rise):
		w.Sleep = rise.Sub(now)
		return w, nil
	case now.After(set):
		local := now.In(c.loc)
		tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 12, 0, 0, 0, c.loc)
		next, _, err := c.Times(tomorrow)
		if err != nil {
			return Window{}, err
		}
		w.Sleep = next.Sub(now)
		return w, nil
	}
	return Window{}, ErrNoWindowMatched
}
