package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/pulsezone/internal/device"
)

type scanOptions struct {
	duration time.Duration
	format   string
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for heart-rate sensors",
		Long: `Scan for Bluetooth LE devices advertising the Heart Rate service (0x180D)
and list them once the scan times out or Ctrl+C is pressed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Scan duration (default from config, 15s)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Output format (table, json)")
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("%w '%s': must be one of [table json]", ErrInvalidFormat, opts.format)
	}
	if opts.duration < 0 {
		return fmt.Errorf("invalid duration %s: must not be negative", opts.duration)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.duration > 0 {
		cfg.ScanTimeout = opts.duration
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := interruptContext(cmd, "stopping scan")
	defer cancel()

	s, err := openSession(ctx, cmd, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.monitor.Start(ctx); err != nil {
		return err
	}
	if err := s.monitor.StartScan(); err != nil {
		return err
	}

	progress := NewCountdownPrinter(cmd.ErrOrStderr(), "Scanning for heart-rate sensors", cfg.ScanTimeout)
	progress.Start()

	scanning := s.monitor.Scanning().Subscribe()
	defer scanning.Cancel()

wait:
	for {
		select {
		case <-ctx.Done():
			if err := s.monitor.StopScan(); err != nil {
				logger.WithError(err).Debug("Stop scan failed")
			}
			break wait
		case active := <-scanning.C():
			if !active {
				break wait
			}
		}
	}
	progress.Stop()

	if s.monitor.State().Get() == device.StateFailed {
		if err := s.monitor.Errors().Get(); err != nil {
			return err
		}
	}

	devices := sortDevices(s.monitor.Discovered().Get())
	if opts.format == "json" {
		return displayDevicesJSON(cmd.OutOrStdout(), devices)
	}
	return displayDevicesTable(cmd.OutOrStdout(), devices)
}

// sortDevices orders by signal strength, strongest first, then by name.
func sortDevices(devices []device.DiscoveredDevice) []device.DiscoveredDevice {
	sorted := slices.Clone(devices)
	slices.SortStableFunc(sorted, func(a, b device.DiscoveredDevice) int {
		if a.RSSI != b.RSSI {
			return b.RSSI - a.RSSI
		}
		return strings.Compare(a.Name, b.Name)
	})
	return sorted
}

func displayDevicesTable(out io.Writer, devices []device.DiscoveredDevice) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No heart-rate sensors discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tRSSI")

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", name, d.ID, d.RSSI)
	}

	return w.Flush()
}

func displayDevicesJSON(out io.Writer, devices []device.DiscoveredDevice) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
