package cmd

import (
	"context"
	"log/slog"
	"net/url"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/backlog"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/camera"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/collector"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/config"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/errlog"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/metrics"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/photos"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/restart"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/sensor"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/session"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/solar"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/store"
)

// Flag overrides shared by serve and run-once.
var (
	authFile       string
	collectionName string
)

// setupLogging installs the default logger and returns the buffer that
// captures each cycle's error-level output.
func setupLogging() *errlog.Buffer {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	if logFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	buf := errlog.New()
	slog.SetDefault(slog.New(buf.Wrap(handler)))
	return buf
}

func applyOverrides(cfg *config.Config) {
	if authFile != "" {
		cfg.Photos.AuthFile = authFile
	}
	if collectionName != "" {
		cfg.Photos.CollectionName = collectionName
	}
}

// newRegistry returns a registry carrying the runtime collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// buildScheduler wires every component described by cfg. m may be nil.
func buildScheduler(cfg *config.Config, errs *errlog.Buffer, m *metrics.Collector, logger *slog.Logger) (*collector.Scheduler, error) {
	loc, err := cfg.TimeZone()
	if err != nil {
		return nil, err
	}
	clock := solar.NewClock(cfg.Location.Latitude, cfg.Location.Longitude, loc)

	probes := make([]sensor.Probe, 0, len(cfg.Sensors.Probes))
	for _, p := range cfg.Sensors.Probes {
		probes = append(probes, sensor.Probe{Name: p.Name, Address: p.Address})
	}
	reader := sensor.NewI2CReader(cfg.Sensors.Bus, cfg.Sensors.ReadDelay, probes)

	storeOpts := store.Options{
		Driver:         cfg.DriverName(),
		DSN:            cfg.DSN(),
		ConnectTimeout: cfg.Storage.ConnectTimeout,
		ExecTimeout:    cfg.Storage.WriteTimeout,
		MaxErrorBytes:  cfg.Storage.MaxErrorBytes,
		AutoMigrate:    cfg.Storage.AutoMigrate,
	}

	opener := &session.Opener{
		Store:  func() store.Persister { return store.NewGateway(storeOpts, logger) },
		Logger: logger,
		Uploader: func(ctx context.Context) (session.Uploader, error) {
			c, err := photos.New(photos.Options{AuthFile: cfg.Photos.AuthFile, BaseURL: cfg.Photos.APIURL}, logger)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}

	var dirs []string
	runner := camera.ExecRunner{}
	if rc := cfg.Cameras.Ribbon; rc.Enabled {
		opener.Ribbon = func() camera.Camera {
			return camera.NewRibbonCamera(camera.RibbonConfig{
				Dir:     rc.Dir,
				Command: rc.Command,
				Width:   rc.Width,
				Height:  rc.Height,
			}, runner)
		}
		dirs = append(dirs, rc.Dir)
	}
	if uc := cfg.Cameras.USB; uc.Enabled {
		opener.USB = func() camera.Camera {
			return camera.NewUSBCamera(camera.USBConfig{
				Dir:        uc.Dir,
				DeviceName: uc.DeviceName,
				Resolution: uc.Resolution,
				SkipFrames: uc.SkipFrames,
			}, runner)
		}
		dirs = append(dirs, uc.Dir)
	}

	return collector.New(collector.Config{
		Clock:      clock,
		Sampler:    sensor.NewSampler(reader, probes, logger),
		Opener:     opener,
		Backlog:    backlog.New(logger),
		ErrLog:     errs,
		Metrics:    m,
		Logger:     logger,
		Interval:   cfg.Schedule.Interval,
		Collection: cfg.Photos.CollectionName,
		PhotoDirs:  dirs,
	}), nil
}

func newRestarter(cfg *config.Config, logger *slog.Logger) restart.Restarter {
	if !cfg.Restart.Enabled {
		return restart.Noop{Logger: logger}
	}
	return &restart.Command{Argv: cfg.Restart.Command, Logger: logger}
}

// redactDSN masks the password in a PostgreSQL DSN for safe display.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// displayDSN renders the configured DSN without credentials.
func displayDSN(cfg *config.Config) string {
	switch cfg.Storage.Driver {
	case "postgres":
		return redactDSN(cfg.DSN())
	case "mysql":
		m := cfg.Storage.MySQL
		return m.User + "@" + m.Host + "/" + m.DB
	default:
		return cfg.Storage.SQLite.Path
	}
}
