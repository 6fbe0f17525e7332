package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/api"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/config"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/metrics"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the jarrariumd daemon (default command)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address, empty disables the server (overrides config)")
	serveCmd.Flags().StringVar(&authFile, "auth-file", "", "photo library credentials file (overrides config)")
	serveCmd.Flags().StringVar(&collectionName, "collection-name", "", "album photos are uploaded to (overrides config)")
	rootCmd.AddCommand(serveCmd)

	// Make serve the default command.
	rootCmd.RunE = runServe
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	errs := setupLogging()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddr = listenAddr
	}
	applyOverrides(cfg)

	logger := slog.Default()
	logger.Info("starting jarrariumd",
		"version", Version,
		"listen_addr", cfg.ListenAddr,
		"storage_driver", cfg.Storage.Driver,
		"storage", displayDSN(cfg),
		"collection", cfg.Photos.CollectionName,
		"latitude", cfg.Location.Latitude,
		"longitude", cfg.Location.Longitude,
	)

	reg := newRegistry()
	sched, err := buildScheduler(cfg, errs, metrics.NewCollector(reg, "jarrarium"), logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var srv *api.Server
	if cfg.ListenAddr != "" {
		srv = api.NewServer(sched, reg, logger)
		srv.SetVersion(Version)
		srv.SetStorageDriver(cfg.Storage.Driver)
	}

	// Start scheduler and server using errgroup. A scheduler error is fatal
	// and distinct from a server failure, so it is captured separately.
	var runErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runErr = sched.Run(gctx)
		return runErr
	})
	if srv != nil {
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.ListenAddr) })
	}

	waitErr := g.Wait()

	// Always run graceful cleanup, even on error.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}

	if runErr != nil {
		logger.Error("scheduler failed", "error", runErr)
		if err := newRestarter(cfg, logger).Restart(shutdownCtx, runErr); err != nil {
			logger.Error("restart failed", "error", err)
		}
		return runErr
	}

	logger.Info("jarrariumd shutdown complete")
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return nil
}
