// Package collector runs the daylight-gated sampling loop.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/backlog"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/metrics"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/sensor"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/session"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/solar"
)

// State is the scheduler's position in its loop.
type State int

const (
	AwaitingDaylight State = iota
	RunningCycle
	SleepingShort
	SleepingLong
	RotatingSession
	Stopped
)

func (s State) String() string {
	switch s {
	case AwaitingDaylight:
		return "awaiting_daylight"
	case RunningCycle:
		return "running_cycle"
	case SleepingShort:
		return "sleeping_short"
	case SleepingLong:
		return "sleeping_long"
	case RotatingSession:
		return "rotating_session"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DefaultInterval is the sleep between cycles during daylight.
const DefaultInterval = 5 * time.Minute

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	State             string    `json:"state"`
	SessionID         string    `json:"session_id,omitempty"`
	CyclesRun         int       `json:"cycles_run"`
	LastCycleAt       time.Time `json:"last_cycle_at,omitempty"`
	NextWakeAt        time.Time `json:"next_wake_at,omitempty"`
	Sunrise           time.Time `json:"sunrise,omitempty"`
	Sunset            time.Time `json:"sunset,omitempty"`
	PendingReadings   int       `json:"pending_readings"`
	PendingErrors     int       `json:"pending_errors"`
	DatabaseConnected bool      `json:"database_connected"`
	LastError         string    `json:"last_error,omitempty"`
}

// WindowSource computes the current daylight window. *solar.Clock is the
// production implementation.
type WindowSource interface {
	NextWindow(now time.Time) (solar.Window, error)
}

// Sampler reads the sensors once. *sensor.Sampler is the production
// implementation.
type Sampler interface {
	Sample(ctx context.Context, at time.Time) sensor.Readings
}

// SessionOpener creates resource sessions. *session.Opener is the production
// implementation.
type SessionOpener interface {
	Open(ctx context.Context) *session.Session
}

// ErrorLog is the per-cycle scratch buffer of error-level log output.
type ErrorLog interface {
	Text() string
	Reset()
}

// Config wires a Scheduler.
type Config struct {
	Clock   WindowSource
	Sampler Sampler
	Opener  SessionOpener
	Backlog *backlog.Backlog
	ErrLog  ErrorLog
	Metrics *metrics.Collector
	Logger  *slog.Logger

	// Interval is the short sleep between daylight cycles.
	Interval time.Duration
	// Collection is the photo album uploads go to.
	Collection string
	// PhotoDirs are scanned for *.jpg files to upload after every capture.
	PhotoDirs []string

	// Now and Sleep default to the wall clock and a context-aware timer.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Scheduler drives sampling cycles and the sleep/wake state machine. Run and
// RunCycle must be called from a single goroutine; Status is safe from any.
type Scheduler struct {
	clock      WindowSource
	sampler    Sampler
	opener     SessionOpener
	backlog    *backlog.Backlog
	errlog     ErrorLog
	metrics    *metrics.Collector
	logger     *slog.Logger
	interval   time.Duration
	collection string
	photoDirs  []string
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	session *session.Session

	mu     sync.RWMutex
	status Status
}

// New creates a scheduler from cfg.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		clock:      cfg.Clock,
		sampler:    cfg.Sampler,
		opener:     cfg.Opener,
		backlog:    cfg.Backlog,
		errlog:     cfg.ErrLog,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		interval:   cfg.Interval,
		collection: cfg.Collection,
		photoDirs:  cfg.PhotoDirs,
		now:        cfg.Now,
		sleep:      cfg.Sleep,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	if s.backlog == nil {
		s.backlog = backlog.New(s.logger)
	}
	if s.errlog == nil {
		s.errlog = nopErrorLog{}
	}
	s.status.State = AwaitingDaylight.String()
	return s
}

// Run executes the scheduler until ctx is cancelled, returning nil. Any other
// return is a fatal failure, including a recovered panic or a daylight
// computation error, and the caller is expected to restart the device.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler panic: %v", r)
			s.logger.Error("panic in scheduler loop", "error", r)
		}
		if relErr := s.Close(); relErr != nil {
			s.logger.Warn("releasing session on exit", "error", relErr)
		}
		s.setState(Stopped, time.Time{})
	}()

	s.setState(AwaitingDaylight, time.Time{})
	w, err := s.window()
	if err != nil {
		return err
	}
	if !w.Daylight() {
		if !s.sleepFor(ctx, AwaitingDaylight, w.Sleep) {
			return nil
		}
	}

	for {
		s.RunCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		w, err := s.window()
		if err != nil {
			return err
		}

		if w.Daylight() {
			if !s.sleepFor(ctx, SleepingShort, s.interval) {
				return nil
			}
			continue
		}

		if err := s.Close(); err != nil {
			s.logger.Warn("session released with errors", "error", err)
		}
		if !s.sleepFor(ctx, SleepingLong, w.Sleep) {
			return nil
		}
		s.rotate(ctx)

		w, err = s.window()
		if err != nil {
			return err
		}
		if !w.Daylight() {
			if !s.sleepFor(ctx, AwaitingDaylight, w.Sleep) {
				return nil
			}
		}
	}
}

// rotate drops the previous segment's backlog and opens a fresh session.
func (s *Scheduler) rotate(ctx context.Context) {
	s.setState(RotatingSession, time.Time{})

	readings, errs := s.backlog.PendingReadings(), s.backlog.PendingErrors()
	s.backlog.Clear()
	s.metrics.RecordBacklogDiscarded(readings, errs)
	s.metrics.SetBacklog(0, 0)
	s.metrics.RecordRotation()

	s.openSession(ctx)
}

func (s *Scheduler) openSession(ctx context.Context) *session.Session {
	if s.session == nil {
		s.session = s.opener.Open(ctx)
		s.mu.Lock()
		s.status.SessionID = s.session.ID.String()
		s.status.DatabaseConnected = s.session.Store.Connected()
		s.mu.Unlock()
	}
	return s.session
}

// Close releases the current session, if any.
func (s *Scheduler) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Release()
	s.session = nil
	s.mu.Lock()
	s.status.SessionID = ""
	s.status.DatabaseConnected = false
	s.mu.Unlock()
	return err
}

func (s *Scheduler) window() (solar.Window, error) {
	w, err := s.clock.NextWindow(s.now())
	if err != nil {
		return solar.Window{}, fmt.Errorf("computing daylight window: %w", err)
	}
	s.mu.Lock()
	s.status.Sunrise = w.Sunrise
	s.status.Sunset = w.Sunset
	s.mu.Unlock()
	return w, nil
}

// sleepFor sleeps d in state and reports whether the scheduler should go on.
func (s *Scheduler) sleepFor(ctx context.Context, state State, d time.Duration) bool {
	wake := s.now().Add(d)
	s.setState(state, wake)
	s.logger.Info("sleeping", "state", state.String(), "duration", d.Round(time.Second), "wake_at", wake.Format(time.RFC3339))
	return s.sleep(ctx, d) == nil
}

func (s *Scheduler) setState(state State, wake time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = state.String()
	s.status.NextWakeAt = wake
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopErrorLog struct{}

func (nopErrorLog) Text() string { return "" }
func (nopErrorLog) Reset()       {}
