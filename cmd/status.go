package cmd

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/api"
)

var statusServer string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the health endpoint of a running jarrariumd instance",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "http://localhost:8080", "jarrariumd server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
	resp, err := client.Get(statusServer + "/api/v1/health")
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", statusServer, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var health api.HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&health); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	out := cmd.OutOrStdout()
	sched := health.Scheduler
	fmt.Fprintf(out, "jarrariumd %s\n", health.Version)
	fmt.Fprintf(out, "Status: %s\n", health.Status)
	fmt.Fprintf(out, "Uptime: %s\n", health.Uptime)
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Scheduler: %s\n", sched.State)
	if sched.SessionID != "" {
		fmt.Fprintf(out, "  Session: %s\n", sched.SessionID)
	}
	fmt.Fprintf(out, "  Cycles: %d\n", sched.CyclesRun)
	if !sched.LastCycleAt.IsZero() {
		fmt.Fprintf(out, "  Last cycle: %s (%s ago)\n", formatTime(sched.LastCycleAt), time.Since(sched.LastCycleAt).Round(time.Second))
	}
	if !sched.NextWakeAt.IsZero() {
		fmt.Fprintf(out, "  Next wake: %s\n", formatTime(sched.NextWakeAt))
	}
	if !sched.Sunrise.IsZero() {
		fmt.Fprintf(out, "  Daylight: %s to %s\n", formatTime(sched.Sunrise), formatTime(sched.Sunset))
	}
	if sched.LastError != "" {
		fmt.Fprintf(out, "  Last error: %s\n", sched.LastError)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Database: %s (%s)\n", health.Database.Driver, health.Database.Status)
	if health.Backlog.Readings > 0 || health.Backlog.Errors > 0 {
		fmt.Fprintf(out, "  Backlog: %s readings, %s errors\n",
			formatNumber(health.Backlog.Readings), formatNumber(health.Backlog.Errors))
	}

	return nil
}

func formatTime(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") }

// formatNumber formats an integer with comma separators (e.g., 1,247,832).
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}
