package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/config"
	"github.com/javezbak/Jarrarium-Time-Lapse/internal/store"
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single sampling cycle regardless of daylight, then exit",
	RunE:  runOnce,
}

func init() {
	runOnceCmd.Flags().StringVar(&authFile, "auth-file", "", "photo library credentials file (overrides config)")
	runOnceCmd.Flags().StringVar(&collectionName, "collection-name", "", "album photos are uploaded to (overrides config)")
	rootCmd.AddCommand(runOnceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	errs := setupLogging()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyOverrides(cfg)

	sched, err := buildScheduler(cfg, errs, nil, slog.Default())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report := sched.RunCycle(ctx)
	if err := sched.Close(); err != nil {
		slog.Warn("session released with errors", "error", err)
	}

	out := cmd.OutOrStdout()
	rec := report.Record
	fmt.Fprintf(out, "Cycle at %s\n", rec.CapturedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "  pH:               %s\n", nullString(rec.PH.Valid, rec.PH.Decimal.String()))
	fmt.Fprintf(out, "  Dissolved oxygen: %s\n", nullString(rec.DissolvedOxygen.Valid, rec.DissolvedOxygen.Decimal.String()))
	fmt.Fprintf(out, "  Temperature (F):  %s\n", nullString(rec.TemperatureF.Valid, rec.TemperatureF.Decimal.String()))
	fmt.Fprintf(out, "  Ribbon photo:     %s\n", nullString(rec.RibbonPhoto.Valid, rec.RibbonPhoto.String))
	fmt.Fprintf(out, "  USB photo:        %s\n", nullString(rec.USBPhoto.Valid, rec.USBPhoto.String))
	fmt.Fprintf(out, "  Uploaded:         %d\n", report.Uploaded)
	fmt.Fprintf(out, "  Record:           %s\n", report.ReadingStatus)
	if report.ErrorText {
		fmt.Fprintf(out, "  Error log:        %s\n", report.ErrorStatus)
	}

	if report.ReadingStatus != store.Success {
		return fmt.Errorf("cycle record not persisted: %s", report.ReadingStatus)
	}
	return nil
}

func nullString(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}
