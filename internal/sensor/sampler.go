package sensor

import (
	"context"
	"log/slog"
	"time"
)

// readCommand asks an EZO circuit for a single reading.
const readCommand = "R"

// Sampler reads every configured probe once per cycle.
type Sampler struct {
	reader Reader
	probes []Probe
	logger *slog.Logger
}

// NewSampler creates a sampler over probes.
func NewSampler(reader Reader, probes []Probe, logger *slog.Logger) *Sampler {
	return &Sampler{reader: reader, probes: probes, logger: logger}
}

// Sample queries each probe in order. Failures are logged at error level and
// leave that kind absent from the result; they never abort the cycle.
func (s *Sampler) Sample(ctx context.Context, at time.Time) Readings {
	out := make(Readings, len(s.probes))
	for _, p := range s.probes {
		if ctx.Err() != nil {
			return out
		}
		raw, err := s.reader.Query(ctx, p.Address, readCommand)
		if err != nil {
			s.logger.Error("sensor query failed", "probe", p.Name, "address", p.Address, "error", err)
			continue
		}
		rd, err := Parse(raw, at)
		if err != nil {
			s.logger.Error("sensor reading rejected", "probe", p.Name, "address", p.Address, "error", err)
			continue
		}
		out[rd.Kind] = rd
		s.logger.Debug("sensor reading", "kind", rd.Kind.String(), "value", rd.Value.String())
	}
	return out
}
