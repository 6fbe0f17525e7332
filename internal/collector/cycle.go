package collector

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/camera"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/metrics"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/sensor"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/session"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/store"
)

// maxStatusError bounds the error text kept in the status snapshot.
const maxStatusError = 2048

// CycleReport summarizes one cycle.
type CycleReport struct {
	Record          store.CycleRecord
	Readings        int
	Uploaded        int
	DrainedReadings int
	DrainedErrors   int
	ReadingStatus   store.Status
	// ErrorStatus is meaningful only when ErrorText is set.
	ErrorStatus store.Status
	ErrorText   bool
}

// RunCycle performs one sense, capture, upload and persist pass, opening a
// session first if none is live. It never fails: every problem is logged and
// degrades the cycle's record instead.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	start := s.now()
	s.setState(RunningCycle, start)
	fresh := s.session == nil
	sess := s.openSession(ctx)
	s.reconnect(ctx, sess, fresh)

	readings := s.sampler.Sample(ctx, start)
	for kind := range readings {
		s.metrics.RecordReading(kind.String())
	}
	rec := store.CycleRecord{
		CapturedAt:      start,
		PH:              readings.Get(sensor.PH),
		DissolvedOxygen: readings.Get(sensor.DissolvedOxygen),
		TemperatureF:    readings.Get(sensor.Temperature),
	}
	rec.RibbonPhoto, rec.USBPhoto = s.capture(ctx, sess, start)

	report := CycleReport{Record: rec, Readings: len(readings)}
	report.Uploaded = s.upload(ctx, sess)

	// A store that is still down after the reconnect above is not retried
	// again this cycle; everything goes straight to the backlog.
	ins := recordingInserter{Persister: sess.Store, metrics: s.metrics}
	if ins.Connected() {
		report.DrainedReadings = s.backlog.DrainReadings(ctx, ins).Persisted
	}
	if ins.Connected() {
		report.DrainedErrors = s.backlog.DrainErrors(ctx, ins).Persisted
	}

	res := ins.insertReading(ctx, rec)
	report.ReadingStatus = res.Status
	if !res.OK() {
		s.backlog.RecordReading(rec)
	} else {
		s.logger.Info("cycle recorded",
			"captured_at", start,
			"readings", len(readings),
			"ribbon_photo", rec.RibbonPhoto.String,
			"usb_photo", rec.USBPhoto.String,
		)
	}

	// Errors logged from here on belong to the next cycle's record.
	text := s.errlog.Text()
	s.errlog.Reset()
	if text != "" {
		report.ErrorText = true
		erec := store.ErrorRecord{LoggedAt: start, Message: text}
		res := ins.insertError(ctx, erec)
		report.ErrorStatus = res.Status
		if !res.OK() {
			s.backlog.RecordError(erec)
		}
	}

	s.finishCycle(sess, report, text)
	return report
}

// reconnect retries the store of a session carried over from an earlier
// cycle when that session lost its connection. A session opened by this
// cycle has already made its attempt.
func (s *Scheduler) reconnect(ctx context.Context, sess *session.Session, fresh bool) {
	if fresh || sess.Store.Connected() {
		return
	}
	if err := sess.Store.Connect(ctx); err != nil {
		s.logger.Error("database reconnect failed", "session", sess.ID, "error", err)
	}
}

func (s *Scheduler) finishCycle(sess *session.Session, report CycleReport, errText string) {
	end := s.now()
	pr, pe := s.backlog.PendingReadings(), s.backlog.PendingErrors()

	outcome := "ok"
	switch {
	case report.ReadingStatus != store.Success:
		outcome = "buffered"
	case errText != "":
		outcome = "degraded"
	}
	s.metrics.RecordCycle(outcome, end.Sub(report.Record.CapturedAt), end)
	s.metrics.SetBacklog(pr, pe)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.CyclesRun++
	s.status.LastCycleAt = report.Record.CapturedAt
	s.status.PendingReadings = pr
	s.status.PendingErrors = pe
	s.status.DatabaseConnected = sess.Store.Connected()
	if errText != "" {
		s.status.LastError = strings.TrimSpace(store.TruncateMessage(errText, maxStatusError))
	}
}

// capture shoots both cameras concurrently. A failure leaves that name
// absent and never affects the other camera.
func (s *Scheduler) capture(ctx context.Context, sess *session.Session, at time.Time) (ribbon, usb sql.NullString) {
	var g errgroup.Group
	shoot := func(c camera.Camera, out *sql.NullString) {
		if c == nil {
			return
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("panic during photo capture", "camera", c.Name(), "error", r)
					s.metrics.RecordCapture(c.Name(), false)
				}
			}()
			name, err := camera.Shoot(ctx, c, at)
			s.metrics.RecordCapture(c.Name(), err == nil)
			if err != nil {
				s.logger.Error("photo capture failed", "camera", c.Name(), "error", err)
				return nil
			}
			*out = sql.NullString{String: name, Valid: true}
			return nil
		})
	}
	shoot(sess.Ribbon, &ribbon)
	shoot(sess.USB, &usb)
	_ = g.Wait()
	return ribbon, usb
}

// upload sends every photo waiting in the photo directories, removing each
// local file once its upload has been attempted. Without an uploader the
// files stay for a later cycle.
func (s *Scheduler) upload(ctx context.Context, sess *session.Session) int {
	photos := s.pendingPhotos()
	if len(photos) == 0 {
		return 0
	}
	if sess.Uploader == nil {
		s.logger.Warn("photo uploader unavailable, keeping photos", "pending", len(photos))
		return 0
	}

	uploaded := 0
	for _, path := range photos {
		if ctx.Err() != nil {
			break
		}
		err := sess.Uploader.Upload(ctx, path, s.collection)
		s.metrics.RecordUpload(err == nil)
		if err != nil {
			s.logger.Error("photo upload failed", "file", filepath.Base(path), "error", err)
		} else {
			uploaded++
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Error("removing uploaded photo", "file", path, "error", err)
		}
	}
	return uploaded
}

func (s *Scheduler) pendingPhotos() []string {
	var out []string
	for _, dir := range s.photoDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
		if err != nil {
			s.logger.Error("listing photos", "dir", dir, "error", err)
			continue
		}
		slices.Sort(matches)
		out = append(out, matches...)
	}
	return out
}

// recordingInserter counts every insert attempt.
type recordingInserter struct {
	store.Persister
	metrics *metrics.Collector
}

func (r recordingInserter) InsertReading(ctx context.Context, rec store.CycleRecord) store.Result {
	res := r.Persister.InsertReading(ctx, rec)
	r.metrics.RecordInsert("RecordedInput", res.Status.String())
	return res
}

func (r recordingInserter) InsertError(ctx context.Context, rec store.ErrorRecord) store.Result {
	res := r.Persister.InsertError(ctx, rec)
	r.metrics.RecordInsert("RecordedErrors", res.Status.String())
	return res
}

// insertReading and insertError make no attempt while the store is down.
func (r recordingInserter) insertReading(ctx context.Context, rec store.CycleRecord) store.Result {
	if !r.Connected() {
		return store.Result{Status: store.ConnectivityLost, Err: store.ErrDisconnected}
	}
	return r.InsertReading(ctx, rec)
}

func (r recordingInserter) insertError(ctx context.Context, rec store.ErrorRecord) store.Result {
	if !r.Connected() {
		return store.Result{Status: store.ConnectivityLost, Err: store.ErrDisconnected}
	}
	return r.InsertError(ctx, rec)
}
