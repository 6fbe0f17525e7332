package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "jarrariumd",
	Short: "Daylight-gated monitoring daemon for a home aquarium",
	Long: `jarrariumd samples pH, dissolved oxygen and temperature probes over I2C,
photographs the tank with a ribbon camera and a USB webcam, uploads the photos
to a shared album, and stores every reading in MySQL, PostgreSQL or SQLite.
Work only happens between sunrise and sunset at the configured location.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (text or json)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
