package collector

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/store"
)

// sqliteLink is a SQLite-backed store whose connection attempts fail while
// down, standing in for an unreachable database server.
type sqliteLink struct {
	dsn  string
	down bool
}

func (l *sqliteLink) open(_ context.Context, driver, dsn string) (*sqlx.DB, error) {
	if l.down {
		return nil, errors.New("dial tcp 10.0.0.5:3306: connect: connection refused")
	}
	return sqlx.Open(driver, dsn)
}

// useGateway backs the harness sessions with a real Gateway.
func useGateway(t *testing.T, h *harness) *sqliteLink {
	t.Helper()
	link := &sqliteLink{dsn: filepath.Join(t.TempDir(), "jarrarium.db")}
	h.opener.newStore = func() store.Persister {
		g := store.NewGateway(store.Options{Driver: "sqlite", DSN: link.dsn, AutoMigrate: true}, h.logger)
		return g.WithOpener(link.open)
	}
	t.Cleanup(func() { _ = h.sched.Close() })
	return link
}

func (l *sqliteLink) query(t *testing.T, q string) []string {
	t.Helper()
	db, err := sqlx.Open("sqlite", l.dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close() //nolint:errcheck

	var out []string
	if err := db.Select(&out, q); err != nil {
		t.Fatalf("%s: %v", q, err)
	}
	return out
}

func (l *sqliteLink) exec(t *testing.T, q string) {
	t.Helper()
	db, err := sqlx.Open("sqlite", l.dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close() //nolint:errcheck
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("%s: %v", q, err)
	}
}

func TestRunCycle_GatewayOutageThenRecovery(t *testing.T) {
	h := newHarness(t)
	link := useGateway(t, h)
	link.down = true

	for i := 0; i < 3; i++ {
		if rep := h.cycle(t); rep.ReadingStatus != store.ConnectivityLost {
			t.Fatalf("cycle %d status = %v, want connectivity_lost", i, rep.ReadingStatus)
		}
	}
	if n := h.sched.Status().PendingReadings; n != 3 {
		t.Fatalf("pending readings = %d, want 3", n)
	}

	link.down = false
	rep := h.cycle(t)
	if rep.ReadingStatus != store.Success {
		t.Fatalf("recovered cycle status = %v (%+v)", rep.ReadingStatus, rep)
	}
	if rep.DrainedReadings != 3 {
		t.Errorf("drained = %d, want 3", rep.DrainedReadings)
	}

	got := link.query(t, `SELECT usb_photo_file_name FROM RecordedInput ORDER BY id`)
	want := []string{
		"USB-Cam 2024-06-15 09_00_00.jpg",
		"USB-Cam 2024-06-15 09_05_00.jpg",
		"USB-Cam 2024-06-15 09_10_00.jpg",
		"USB-Cam 2024-06-15 09_15_00.jpg",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("rows in insert order = %v, want %v", got, want)
	}

	// The connect failures of cycles 2 and 3 were logged and are drained too.
	if n := len(link.query(t, `SELECT error_message FROM RecordedErrors`)); n != 2 {
		t.Errorf("error rows = %d, want 2", n)
	}
	if st := h.sched.Status(); st.PendingReadings != 0 || st.PendingErrors != 0 || !st.DatabaseConnected {
		t.Errorf("status = %+v", st)
	}
}

func TestRunCycle_InsertErrorFailureCarriesToNextCycle(t *testing.T) {
	h := newHarness(t)
	link := useGateway(t, h)
	h.opener.ribbonErr = errors.New("camera not detected")

	// Open the session so migrations have run, then break the error table.
	h.sched.openSession(context.Background())
	link.exec(t, `DROP TABLE RecordedErrors`)

	rep := h.cycle(t)
	if !rep.ErrorText || rep.ErrorStatus != store.OtherFailure {
		t.Fatalf("error text %v status %v, want other_failure", rep.ErrorText, rep.ErrorStatus)
	}
	if text := h.errs.Text(); !strings.Contains(text, "insert into RecordedErrors failed") {
		t.Errorf("next cycle error log = %q, want the failed insert", text)
	}
	if n := h.sched.Status().PendingErrors; n != 1 {
		t.Errorf("pending errors = %d, want 1", n)
	}
}
