package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// newMockGateway returns a gateway whose opener hands out sqlmock handles and
// counts how often it was called.
func newMockGateway(t *testing.T) (*Gateway, sqlmock.Sqlmock, *int) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	opens := 0
	g := NewGateway(Options{Driver: "sqlmock", MaxErrorBytes: 64}, slog.Default())
	g.WithOpener(func(context.Context, string, string) (*sqlx.DB, error) {
		opens++
		return sqlx.NewDb(db, "sqlmock"), nil
	})
	return g, mock, &opens
}

// newDeadGateway returns a gateway whose opener always fails.
func newDeadGateway() (*Gateway, *int) {
	opens := 0
	g := NewGateway(Options{Driver: "sqlmock"}, slog.Default())
	g.WithOpener(func(context.Context, string, string) (*sqlx.DB, error) {
		opens++
		return nil, errors.New("dial tcp 10.0.0.5:3306: connect: connection refused")
	})
	return g, &opens
}

func sampleRecord(ts time.Time) CycleRecord {
	return CycleRecord{
		CapturedAt:      ts,
		PH:              decimal.NewNullDecimal(decimal.RequireFromString("7.2")),
		DissolvedOxygen: decimal.NullDecimal{},
		TemperatureF:    decimal.NewNullDecimal(decimal.RequireFromString("77")),
		RibbonPhoto:     sql.NullString{},
		USBPhoto:        sql.NullString{String: "USB-Cam 2024-06-15 12_00_00.jpg", Valid: true},
	}
}

var insertReadingRE = regexp.QuoteMeta("INSERT INTO RecordedInput")
var insertErrorRE = regexp.QuoteMeta("INSERT INTO RecordedErrors")

func TestGateway_InsertReadingSuccess(t *testing.T) {
	g, mock, _ := newMockGateway(t)
	ctx := context.Background()
	if err := g.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ts := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(insertReadingRE).
		WithArgs(ts, "7.2", nil, "77", nil, "USB-Cam 2024-06-15 12_00_00.jpg").
		WillReturnResult(sqlmock.NewResult(1, 1))

	res := g.InsertReading(ctx, sampleRecord(ts))
	if res.Status != Success {
		t.Fatalf("status = %v, want success (err=%v)", res.Status, res.Err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("mock expectations: %v", err)
	}
}

func TestGateway_UnexpectedRowCount(t *testing.T) {
	for _, rows := range []int64{0, 2} {
		g, mock, opens := newMockGateway(t)
		ctx := context.Background()
		if err := g.Connect(ctx); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		mock.ExpectExec(insertReadingRE).WillReturnResult(sqlmock.NewResult(0, rows))

		res := g.InsertReading(ctx, sampleRecord(time.Now()))
		if res.Status != OtherFailure {
			t.Errorf("rows=%d: status = %v, want other_failure", rows, res.Status)
		}
		if *opens != 1 {
			t.Errorf("rows=%d: opens = %d, want 1 (no reconnect on data failure)", rows, *opens)
		}
		if !g.Connected() {
			t.Errorf("rows=%d: gateway should stay connected", rows)
		}
	}
}

func TestGateway_StatementErrorIsOtherFailure(t *testing.T) {
	g, mock, opens := newMockGateway(t)
	ctx := context.Background()
	if err := g.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mock.ExpectExec(insertReadingRE).WillReturnError(errors.New("Error 1366: Incorrect decimal value"))

	res := g.InsertReading(ctx, sampleRecord(time.Now()))
	if res.Status != OtherFailure {
		t.Fatalf("status = %v, want other_failure", res.Status)
	}
	if *opens != 1 {
		t.Errorf("opens = %d, want 1", *opens)
	}
}

func TestGateway_ConnectivityLostMidCallReconnects(t *testing.T) {
	g, mock, opens := newMockGateway(t)
	ctx := context.Background()
	if err := g.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mock.ExpectExec(insertReadingRE).WillReturnError(&net.OpError{
		Op: "read", Net: "tcp", Err: syscall.ECONNRESET,
	})

	res := g.InsertReading(ctx, sampleRecord(time.Now()))
	if res.Status != ConnectivityLost {
		t.Fatalf("status = %v, want connectivity_lost", res.Status)
	}
	if *opens != 2 {
		t.Errorf("opens = %d, want 2 (initial connect + one reconnect)", *opens)
	}
}

func TestGateway_DisconnectedNeverExecutes(t *testing.T) {
	g, opens := newDeadGateway()
	ctx := context.Background()

	if err := g.Connect(ctx); err == nil {
		t.Fatal("expected connect failure")
	}
	if g.Connected() {
		t.Fatal("gateway should be disconnected")
	}

	for i := 1; i <= 3; i++ {
		res := g.InsertReading(ctx, sampleRecord(time.Now()))
		if res.Status != ConnectivityLost {
			t.Fatalf("insert %d: status = %v, want connectivity_lost", i, res.Status)
		}
		if !errors.Is(res.Err, ErrDisconnected) {
			t.Errorf("insert %d: err = %v, want ErrDisconnected", i, res.Err)
		}
		// One initial connect plus exactly one reconnect per failed insert.
		if want := 1 + i; *opens != want {
			t.Errorf("insert %d: opens = %d, want %d", i, *opens, want)
		}
	}
	if g.ConnectAttempts() != 4 {
		t.Errorf("ConnectAttempts = %d, want 4", g.ConnectAttempts())
	}
}

func TestGateway_InsertErrorTruncates(t *testing.T) {
	g, mock, _ := newMockGateway(t)
	ctx := context.Background()
	if err := g.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	long := strings.Repeat("x", 200)
	ts := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(insertErrorRE).
		WithArgs(ts, strings.Repeat("x", 64)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res := g.InsertError(ctx, ErrorRecord{LoggedAt: ts, Message: long})
	if !res.OK() {
		t.Fatalf("InsertError: %v (%v)", res.Status, res.Err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("mock expectations: %v", err)
	}
}

func TestGateway_InsertErrorConnectivity(t *testing.T) {
	g, mock, opens := newMockGateway(t)
	ctx := context.Background()
	if err := g.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mock.ExpectExec(insertErrorRE).WillReturnError(io.ErrUnexpectedEOF)

	res := g.InsertError(ctx, ErrorRecord{LoggedAt: time.Now(), Message: "boom"})
	if res.Status != ConnectivityLost {
		t.Fatalf("status = %v, want connectivity_lost", res.Status)
	}
	if *opens != 2 {
		t.Errorf("opens = %d, want 2", *opens)
	}
}

func TestGateway_CloseDisconnects(t *testing.T) {
	g, mock, _ := newMockGateway(t)
	if err := g.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mock.ExpectClose()
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if g.Connected() {
		t.Error("gateway should be disconnected after Close")
	}
	// Closing twice is a no-op.
	if err := g.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
