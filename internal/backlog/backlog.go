// Package backlog buffers cycle and error records in memory while the store
// is unreachable and replays them, oldest first, once it comes back.
//
// The backlog is process memory only. Entries do not survive a restart and
// are discarded whenever the scheduler rotates its session.
package backlog

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/store"
)

// Inserter is the part of the persistence gateway the backlog replays into.
type Inserter interface {
	InsertReading(ctx context.Context, rec store.CycleRecord) store.Result
	InsertError(ctx context.Context, rec store.ErrorRecord) store.Result
}

// DrainStats summarizes one drain call.
type DrainStats struct {
	Attempted int
	Persisted int
	Remaining int
	// Stopped is set when the drain gave up early on a connectivity loss.
	Stopped bool
}

// Backlog holds records whose most recent persistence attempt failed, keyed
// by capture timestamp. It is not safe for concurrent use; the scheduler
// loop is its only user.
type Backlog struct {
	readings map[int64]store.CycleRecord
	errors   map[int64]store.ErrorRecord
	logger   *slog.Logger
}

// New creates an empty backlog.
func New(logger *slog.Logger) *Backlog {
	return &Backlog{
		readings: make(map[int64]store.CycleRecord),
		errors:   make(map[int64]store.ErrorRecord),
		logger:   logger,
	}
}

func key(ts time.Time) int64 { return ts.UnixNano() }

// RecordReading stores rec under its capture time, replacing any earlier
// entry for the same cycle.
func (b *Backlog) RecordReading(rec store.CycleRecord) {
	b.readings[key(rec.CapturedAt)] = rec
}

// RecordError stores rec under its log time, replacing any earlier entry
// for the same cycle.
func (b *Backlog) RecordError(rec store.ErrorRecord) {
	b.errors[key(rec.LoggedAt)] = rec
}

// PendingReadings returns the number of buffered cycle records.
func (b *Backlog) PendingReadings() int { return len(b.readings) }

// PendingErrors returns the number of buffered error records.
func (b *Backlog) PendingErrors() int { return len(b.errors) }

// Readings returns the buffered cycle records in ascending time order.
func (b *Backlog) Readings() []store.CycleRecord {
	out := make([]store.CycleRecord, 0, len(b.readings))
	for _, k := range sortedKeys(b.readings) {
		out = append(out, b.readings[k])
	}
	return out
}

// DrainReadings retries every buffered cycle record in ascending time order.
// Successes are evicted. A connectivity loss stops the drain; other failures
// stay buffered and the drain moves on.
func (b *Backlog) DrainReadings(ctx context.Context, ins Inserter) DrainStats {
	stats := drain(ctx, b.readings, func(rec store.CycleRecord) store.Result {
		return ins.InsertReading(ctx, rec)
	})
	b.logDrain("readings", stats)
	return stats
}

// DrainErrors retries every buffered error record, with the same rules as
// DrainReadings.
func (b *Backlog) DrainErrors(ctx context.Context, ins Inserter) DrainStats {
	stats := drain(ctx, b.errors, func(rec store.ErrorRecord) store.Result {
		return ins.InsertError(ctx, rec)
	})
	b.logDrain("errors", stats)
	return stats
}

// Clear drops every buffered entry, persisted or not.
func (b *Backlog) Clear() {
	if n := len(b.readings) + len(b.errors); n > 0 {
		b.logger.Warn("discarding unpersisted backlog",
			"readings", len(b.readings),
			"errors", len(b.errors),
		)
	}
	clear(b.readings)
	clear(b.errors)
}

func (b *Backlog) logDrain(kind string, s DrainStats) {
	if s.Attempted == 0 {
		return
	}
	b.logger.Info("drained backlog",
		"kind", kind,
		"attempted", s.Attempted,
		"persisted", s.Persisted,
		"remaining", s.Remaining,
		"stopped", s.Stopped,
	)
}

func drain[T any](ctx context.Context, pending map[int64]T, insert func(T) store.Result) DrainStats {
	var stats DrainStats
	for _, k := range sortedKeys(pending) {
		if ctx.Err() != nil {
			stats.Stopped = true
			break
		}
		stats.Attempted++
		res := insert(pending[k])
		if res.OK() {
			delete(pending, k)
			stats.Persisted++
			continue
		}
		if res.Status == store.ConnectivityLost {
			stats.Stopped = true
			break
		}
	}
	stats.Remaining = len(pending)
	return stats
}

func sortedKeys[T any](m map[int64]T) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
