// Package sensor reads and parses the water-quality probes.
package sensor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies what a reading measures.
type Kind int

const (
	PH Kind = iota
	DissolvedOxygen
	Temperature
)

func (k Kind) String() string {
	switch k {
	case PH:
		return "ph"
	case DissolvedOxygen:
		return "dissolved_oxygen"
	case Temperature:
		return "temperature_f"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reading is one fully parsed measurement. Temperature is in Fahrenheit.
type Reading struct {
	Kind       Kind
	Value      decimal.Decimal
	CapturedAt time.Time
}

var (
	ErrEmpty      = errors.New("empty sensor reading")
	ErrProbe      = errors.New("probe reported an error")
	ErrUnexpected = errors.New("unexpected sensor reading")
	ErrMalformed  = errors.New("sensor reading did not match the expected format")
)

var successLine = regexp.MustCompile(`^Success (DO|pH|RTD) (\d+) : (-?\d+(?:\.\d*)?)$`)

var modules = map[string]Kind{
	"DO":  DissolvedOxygen,
	"pH":  PH,
	"RTD": Temperature,
}

var (
	nine      = decimal.NewFromInt(9)
	five      = decimal.NewFromInt(5)
	thirtyTwo = decimal.NewFromInt(32)
)

// CelsiusToFahrenheit converts exactly: F = C * 9/5 + 32.
func CelsiusToFahrenheit(c decimal.Decimal) decimal.Decimal {
	return c.Mul(nine).Div(five).Add(thirtyTwo)
}

// Parse turns a raw probe line such as "Success pH 99 : 7.20" into a Reading.
// RTD readings are converted from Celsius to Fahrenheit. Any line that is
// not a well-formed success yields an error and no reading.
func Parse(raw string, at time.Time) (Reading, error) {
	line := strings.TrimSpace(strings.ReplaceAll(raw, "\x00", ""))
	switch {
	case line == "":
		return Reading{}, ErrEmpty
	case strings.HasPrefix(line, "Error"):
		return Reading{}, fmt.Errorf("%w: %q", ErrProbe, line)
	case !strings.HasPrefix(line, "Success"):
		return Reading{}, fmt.Errorf("%w: %q", ErrUnexpected, line)
	}

	m := successLine.FindStringSubmatch(line)
	if m == nil {
		return Reading{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	v, err := decimal.NewFromString(m[3])
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %q: %v", ErrMalformed, line, err)
	}

	kind := modules[m[1]]
	if kind == Temperature {
		v = CelsiusToFahrenheit(v)
	}
	return Reading{Kind: kind, Value: v, CapturedAt: at}, nil
}

// Readings holds at most one reading per kind for a cycle.
type Readings map[Kind]Reading

// Get returns the reading for kind as a nullable decimal.
func (r Readings) Get(kind Kind) decimal.NullDecimal {
	rd, ok := r[kind]
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(rd.Value)
}
