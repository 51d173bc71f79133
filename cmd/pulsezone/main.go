package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pulsezone",
		Short: "Heart-rate zone monitor for Bluetooth LE chest straps",
		Long: `Heart-rate zone monitor for Bluetooth Low Energy heart-rate sensors:

- Scan for nearby devices advertising the Heart Rate service
- Stream live BPM and the current training zone
- Reconnect automatically to the last used device
- Fall back to simulated data when no sensor is connected
- Edit and persist the zone thresholds`,
		Version: formatVersion(version),
	}

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newZonesCmd())

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default is $XDG_CONFIG_HOME/pulsezone/config.yaml)")
	rootCmd.PersistentFlags().String("store", "", "State file; .db/.sqlite selects SQLite, anything else YAML")
	rootCmd.PersistentFlags().Bool("ephemeral", false, "Keep state in memory only")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
	rootCmd.SetVersionTemplate(fmt.Sprintf("pulsezone {{.Version}} (commit %s, built %s)\n", commit, date))

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
