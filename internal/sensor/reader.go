package sensor

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Reader sends a command to the probe at address and returns its raw
// response line. A returned error means the bus itself failed; probe-level
// failures are reported inside the response text.
type Reader interface {
	Query(ctx context.Context, address uint16, command string) (string, error)
}

// Probe is one EZO circuit on the bus.
type Probe struct {
	Name    string
	Address uint16
}

// EZO response status codes, the first byte of every read.
const (
	statusSuccess  = 1
	statusFailed   = 2
	statusPending  = 254
	statusNoData   = 255
	responseLength = 31
)

var initHost = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// I2CReader talks to Atlas Scientific EZO circuits over I2C.
type I2CReader struct {
	bus   string
	delay time.Duration
	names map[uint16]string
}

// NewI2CReader returns a reader for the named bus ("" selects the first one).
// delay is how long a circuit needs between command and response.
func NewI2CReader(bus string, delay time.Duration, probes []Probe) *I2CReader {
	names := make(map[uint16]string, len(probes))
	for _, p := range probes {
		names[p.Address] = p.Name
	}
	return &I2CReader{bus: bus, delay: delay, names: names}
}

// Query writes command, waits for the circuit, and reads its response.
func (r *I2CReader) Query(ctx context.Context, address uint16, command string) (string, error) {
	if err := initHost(); err != nil {
		return "", fmt.Errorf("initializing host drivers: %w", err)
	}

	bus, err := i2creg.Open(r.bus)
	if err != nil {
		return "", fmt.Errorf("opening i2c bus %q: %w", r.bus, err)
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: address}
	if _, err := dev.Write([]byte(command)); err != nil {
		return "", fmt.Errorf("writing %q to 0x%02x: %w", command, address, err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(r.delay):
	}

	buf := make([]byte, responseLength)
	if err := dev.Tx(nil, buf); err != nil {
		return "", fmt.Errorf("reading from 0x%02x: %w", address, err)
	}
	return formatResponse(r.name(address), address, buf), nil
}

func (r *I2CReader) name(address uint16) string {
	if n, ok := r.names[address]; ok {
		return n
	}
	return fmt.Sprintf("0x%02x", address)
}

// formatResponse renders a raw EZO buffer as the line Parse expects.
func formatResponse(name string, address uint16, buf []byte) string {
	if len(buf) == 0 {
		return ""
	}
	if buf[0] != statusSuccess {
		return fmt.Sprintf("Error %s %d : %d", name, address, buf[0])
	}
	payload := buf[1:]
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	return fmt.Sprintf("Success %s %d : %s", name, address, bytes.TrimSpace(payload))
}
