// Package session owns the hardware and network handles for one daylight
// segment.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/camera"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/store"
)

// Uploader stores a local photo in a named remote collection.
type Uploader interface {
	Upload(ctx context.Context, path, collection string) error
	Close() error
}

// Session is the set of live handles for one segment. Any camera or the
// uploader may be nil when it could not be acquired. Store is never nil but
// may be disconnected.
type Session struct {
	ID       uuid.UUID
	OpenedAt time.Time

	Store    store.Persister
	Ribbon   camera.Camera
	USB      camera.Camera
	Uploader Uploader

	logger   *slog.Logger
	released bool
}

// Cameras returns the cameras that were opened successfully.
func (s *Session) Cameras() []camera.Camera {
	var out []camera.Camera
	for _, c := range []camera.Camera{s.Ribbon, s.USB} {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Released reports whether Release has been called.
func (s *Session) Released() bool { return s.released }

// Release closes every handle the session owns. Calling it again is a no-op.
func (s *Session) Release() error {
	if s.released {
		return nil
	}
	s.released = true

	var errs []error
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	for _, c := range s.Cameras() {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s camera: %w", c.Name(), err))
		}
	}
	if s.Uploader != nil {
		if err := s.Uploader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing uploader: %w", err))
		}
	}

	log := s.logger
	if log == nil {
		log = slog.Default()
	}
	err := errors.Join(errs...)
	if err != nil {
		log.Warn("session released with errors", "session", s.ID, "error", err)
	} else {
		log.Info("session released", "session", s.ID)
	}
	return err
}

// Opener builds sessions. Each factory must return a fresh handle on every
// call. A nil camera or uploader factory disables that handle.
type Opener struct {
	Store    func() store.Persister
	Ribbon   func() camera.Camera
	USB      func() camera.Camera
	Uploader func(ctx context.Context) (Uploader, error)
	Logger   *slog.Logger
	Now      func() time.Time
}

// Open acquires every handle. Failures are logged at error level and leave
// the corresponding handle unset; the session is always returned.
func (o *Opener) Open(ctx context.Context) *Session {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	s := &Session{ID: uuid.New(), OpenedAt: now(), logger: o.Logger}
	log := o.Logger.With("session", s.ID)

	s.Store = o.Store()
	if err := s.Store.Connect(ctx); err != nil {
		log.Error("database connect failed", "error", err)
	}

	s.Ribbon = o.openCamera(ctx, log, o.Ribbon)
	s.USB = o.openCamera(ctx, log, o.USB)

	if o.Uploader != nil {
		up, err := o.Uploader(ctx)
		if err != nil {
			log.Error("photo uploader unavailable", "error", err)
		} else {
			s.Uploader = up
		}
	}

	log.Info("session opened",
		"database", s.Store.Connected(),
		"cameras", len(s.Cameras()),
		"uploader", s.Uploader != nil,
	)
	return s
}

func (o *Opener) openCamera(ctx context.Context, log *slog.Logger, factory func() camera.Camera) camera.Camera {
	if factory == nil {
		return nil
	}
	c := factory()
	if err := c.Open(ctx); err != nil {
		log.Error("camera unavailable", "camera", c.Name(), "error", err)
		return nil
	}
	return c
}
