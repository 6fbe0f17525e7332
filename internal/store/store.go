package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxErrorBytes is the largest error message RecordedErrors accepts
// (a MEDIUMTEXT column, less one byte).
const DefaultMaxErrorBytes = 16_777_214

// Persister is the persistence surface the scheduler and backlog depend on.
// Gateway is the production implementation.
type Persister interface {
	// Connect (re)establishes the store connection. A failure leaves the
	// persister disconnected; it never panics into the caller.
	Connect(ctx context.Context) error

	// InsertReading persists one cycle record.
	InsertReading(ctx context.Context, rec CycleRecord) Result

	// InsertError persists one error record, truncating the message to the
	// store's column limit.
	InsertError(ctx context.Context, rec ErrorRecord) Result

	// Connected reports whether the last connect succeeded and no
	// connectivity failure has been seen since.
	Connected() bool

	// Close releases the connection.
	Close() error
}

// CycleRecord is one RecordedInput row: everything sampled during a cycle.
// Any sensor or photo field may be absent.
type CycleRecord struct {
	CapturedAt      time.Time
	PH              decimal.NullDecimal
	DissolvedOxygen decimal.NullDecimal
	TemperatureF    decimal.NullDecimal
	RibbonPhoto     sql.NullString
	USBPhoto        sql.NullString
}

// ErrorRecord is one RecordedErrors row: the error text accumulated during a cycle.
type ErrorRecord struct {
	LoggedAt time.Time
	Message  string
}

// Status tags the outcome of a persistence attempt.
type Status int

const (
	// Success means exactly one row was written.
	Success Status = iota
	// ConnectivityLost means the store was unreachable. The gateway has
	// already attempted a reconnect before returning.
	ConnectivityLost
	// OtherFailure covers everything else: unexpected row counts, rejected
	// payloads, driver errors that are not connection related.
	OtherFailure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case ConnectivityLost:
		return "connectivity_lost"
	case OtherFailure:
		return "other_failure"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of InsertReading / InsertError.
type Result struct {
	Status Status
	Err    error
}

// OK reports whether the insert succeeded.
func (r Result) OK() bool { return r.Status == Success }

func succeeded() Result { return Result{Status: Success} }

func connectivityLost(err error) Result { return Result{Status: ConnectivityLost, Err: err} }

func otherFailure(err error) Result { return Result{Status: OtherFailure, Err: err} }

// TruncateMessage cuts msg to at most max bytes. When the cut would split a
// multi-byte rune, the partial rune is dropped so the result stays valid UTF-8.
func TruncateMessage(msg string, max int) string {
	if max <= 0 || len(msg) <= max {
		return msg
	}
	cut := max
	for cut > 0 && !runeStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// runeStart reports whether b begins a UTF-8 sequence (is not a continuation byte).
func runeStart(b byte) bool { return b&0xC0 != 0x80 }
