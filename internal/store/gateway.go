package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	// Registered drivers selectable by Options.Driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	insertReadingQuery = `
		INSERT INTO RecordedInput (
			datetime_recorded, pH, dissolved_oxygen, temperature_F,
			ribbon_photo_file_name, usb_photo_file_name
		) VALUES (?, ?, ?, ?, ?, ?)`

	insertErrorQuery = `
		INSERT INTO RecordedErrors (datetime_recorded, error_message)
		VALUES (?, ?)`
)

// Options configures a Gateway.
type Options struct {
	// Driver is the database/sql driver name: "mysql", "pgx" or "sqlite".
	Driver string
	DSN    string

	ConnectTimeout time.Duration
	ExecTimeout    time.Duration
	MaxErrorBytes  int
	AutoMigrate    bool
}

// Opener opens a database handle. It exists so tests can substitute sqlmock
// or count connection attempts.
type Opener func(ctx context.Context, driver, dsn string) (*sqlx.DB, error)

func openSQLX(_ context.Context, driver, dsn string) (*sqlx.DB, error) {
	return sqlx.Open(driver, dsn)
}

// Gateway wraps the relational store behind a Disconnected/Connected state
// machine. Inserts never return Go errors; they report a tagged Result.
//
// A Gateway is owned by one session and used from one goroutine.
type Gateway struct {
	opts   Options
	open   Opener
	logger *slog.Logger

	db       *sqlx.DB
	migrated bool
	connects int
}

// NewGateway creates a disconnected gateway. Call Connect before inserting.
func NewGateway(opts Options, logger *slog.Logger) *Gateway {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 60 * time.Second
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = 30 * time.Second
	}
	if opts.MaxErrorBytes <= 0 {
		opts.MaxErrorBytes = DefaultMaxErrorBytes
	}
	return &Gateway{opts: opts, open: openSQLX, logger: logger}
}

// WithOpener replaces the function used to open database handles.
func (g *Gateway) WithOpener(open Opener) *Gateway {
	g.open = open
	return g
}

// Connected reports whether the gateway holds a live connection.
func (g *Gateway) Connected() bool { return g.db != nil }

// ConnectAttempts returns how many times Connect has been called.
func (g *Gateway) ConnectAttempts() int { return g.connects }

// Connect closes any previous handle and opens a new one, verifying it with a
// ping bounded by the connect timeout. Migrations run on the first success
// when AutoMigrate is set.
func (g *Gateway) Connect(ctx context.Context) error {
	g.connects++
	g.disconnect()

	ctx, cancel := context.WithTimeout(ctx, g.opts.ConnectTimeout)
	defer cancel()

	db, err := g.open(ctx, g.opts.Driver, g.opts.DSN)
	if err != nil {
		return fmt.Errorf("opening %s: %w", g.opts.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("pinging %s: %w", g.opts.Driver, err)
	}

	if g.opts.AutoMigrate && !g.migrated {
		if err := Migrate(ctx, db.DB, g.opts.Driver); err != nil {
			_ = db.Close()
			return fmt.Errorf("migrating %s: %w", g.opts.Driver, err)
		}
		g.migrated = true
	}

	g.db = db
	g.logger.Info("database connected", "driver", g.opts.Driver)
	return nil
}

// InsertReading writes one RecordedInput row.
func (g *Gateway) InsertReading(ctx context.Context, rec CycleRecord) Result {
	res := g.exec(ctx, "RecordedInput", insertReadingQuery,
		rec.CapturedAt.UTC(),
		rec.PH, rec.DissolvedOxygen, rec.TemperatureF,
		rec.RibbonPhoto, rec.USBPhoto,
	)
	if !res.OK() {
		g.logger.Error("insert into RecordedInput failed",
			"captured_at", rec.CapturedAt.Format(time.RFC3339),
			"ph", nullDecimalString(rec.PH),
			"dissolved_oxygen", nullDecimalString(rec.DissolvedOxygen),
			"temperature_f", nullDecimalString(rec.TemperatureF),
			"ribbon_photo", rec.RibbonPhoto.String,
			"usb_photo", rec.USBPhoto.String,
			"status", res.Status.String(),
			"error", res.Err,
		)
	}
	return res
}

// InsertError writes one RecordedErrors row, truncating the message to the
// configured column limit.
func (g *Gateway) InsertError(ctx context.Context, rec ErrorRecord) Result {
	msg := TruncateMessage(rec.Message, g.opts.MaxErrorBytes)
	res := g.exec(ctx, "RecordedErrors", insertErrorQuery, rec.LoggedAt.UTC(), msg)
	if !res.OK() {
		g.logger.Error("insert into RecordedErrors failed",
			"logged_at", rec.LoggedAt.Format(time.RFC3339),
			"message_bytes", len(msg),
			"status", res.Status.String(),
			"error", res.Err,
		)
	}
	return res
}

func (g *Gateway) exec(ctx context.Context, table, query string, args ...any) Result {
	if g.db == nil {
		g.reconnect(ctx, table)
		return connectivityLost(ErrDisconnected)
	}

	execCtx, cancel := context.WithTimeout(ctx, g.opts.ExecTimeout)
	defer cancel()

	out, err := g.db.ExecContext(execCtx, g.db.Rebind(query), args...)
	if err != nil {
		if isConnectivityError(err) {
			g.reconnect(ctx, table)
			return connectivityLost(fmt.Errorf("inserting into %s: %w", table, err))
		}
		return otherFailure(fmt.Errorf("inserting into %s: %w", table, err))
	}

	n, err := out.RowsAffected()
	if err != nil {
		return otherFailure(fmt.Errorf("reading rows affected for %s: %w", table, err))
	}
	if n != 1 {
		return otherFailure(fmt.Errorf("inserting into %s: %d rows affected, want 1", table, n))
	}
	return succeeded()
}

func (g *Gateway) reconnect(ctx context.Context, table string) {
	if err := g.Connect(ctx); err != nil {
		g.logger.Warn("database reconnect failed", "table", table, "error", err)
	}
}

func (g *Gateway) disconnect() {
	if g.db == nil {
		return
	}
	if err := g.db.Close(); err != nil {
		g.logger.Warn("closing database handle", "error", err)
	}
	g.db = nil
}

// Close releases the connection. The gateway may be reconnected afterwards.
func (g *Gateway) Close() error {
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	if err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return "NULL"
	}
	return d.Decimal.String()
}
