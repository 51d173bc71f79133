package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/pulsezone/internal/device"
	"github.com/srg/pulsezone/internal/monitor"
	"github.com/srg/pulsezone/internal/zone"
	"github.com/srg/pulsezone/pkg/config"
)

type monitorOptions struct {
	deviceID string
	duration time.Duration
	interval time.Duration
	replay   string
	format   string
	noColor  bool
}

func newMonitorCmd() *cobra.Command {
	opts := &monitorOptions{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream heart rate and training zone",
		Long: `Stream heart rate and the current training zone.

Rates come from the connected sensor when one is ready and from a simulation
otherwise. With no --device, the last used sensor is reconnected automatically
as soon as Bluetooth is available.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.deviceID, "device", "D", "", "Connect to this device id")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Simulation tick interval (default from config, 1s)")
	cmd.Flags().StringVar(&opts.replay, "replay", "", "Simulate by replaying BPM values from a file")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	return cmd
}

// rateLine is one JSON output record.
type rateLine struct {
	Time   time.Time `json:"time"`
	BPM    int       `json:"bpm"`
	Live   bool      `json:"live"`
	Zone   string    `json:"zone"`
	ZoneID string    `json:"zone_id"`
}

func runMonitor(cmd *cobra.Command, opts *monitorOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("%w '%s': must be one of [text json]", ErrInvalidFormat, opts.format)
	}
	if opts.duration < 0 || opts.interval < 0 {
		return errors.New("durations must not be negative")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.interval > 0 {
		cfg.SimulationInterval = opts.interval
	}
	if opts.replay != "" {
		cfg.ReplayFile = opts.replay
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	sim, err := newSimulation(cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, cancel := interruptContext(cmd, "stopping monitor")
	defer cancel()
	if opts.duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, opts.duration)
		defer stop()
	}

	s, err := openSession(ctx, cmd, cfg, logger, sim)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	printer := newRatePrinter(out, opts.format, opts.noColor || !isTerminal(out))

	rates := s.monitor.Rate().Subscribe()
	defer rates.Cancel()
	states := s.monitor.State().Subscribe()
	defer states.Cancel()
	failures := s.monitor.Errors().Subscribe()
	defer failures.Cancel()

	if err := s.monitor.Start(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s; showing simulated data\n", FormatUserError(err))
	} else if opts.deviceID != "" {
		if err := s.monitor.Connect(opts.deviceID); err != nil {
			return err
		}
	} else if last := s.monitor.LastDevice(); last != "" {
		logger.WithField("device", last).Info("Waiting to reconnect to last device")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-rates.C():
			if err := printer.rate(r, zone.Classify(r.BPM, s.monitor.Zones().Get())); err != nil {
				return err
			}
		case st := <-states.C():
			printer.state(cmd.ErrOrStderr(), st)
		case err := <-failures.C():
			if err != nil {
				logger.WithError(err).Debug("Monitor error")
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", FormatUserError(err))
			}
		}
	}
}

// newSimulation picks a replay file when configured, a random walk otherwise.
func newSimulation(cfg *config.Config) (monitor.Simulation, error) {
	if cfg.ReplayFile == "" {
		return monitor.NewRandomWalk(cfg.SimulationFloor, cfg.SimulationCeiling, cfg.SimulationStep, 0), nil
	}
	f, err := os.Open(cfg.ReplayFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()

	rates, err := parseReplay(f)
	if err != nil {
		return nil, fmt.Errorf("replay file %s: %w", cfg.ReplayFile, err)
	}
	return monitor.NewReplay(rates), nil
}

// parseReplay reads BPM values separated by whitespace or commas. Lines starting with # are skipped.
func parseReplay(r io.Reader) ([]int, error) {
	var rates []int
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		for _, field := range strings.FieldsFunc(text, func(c rune) bool { return c == ',' || c == ' ' || c == '\t' }) {
			bpm, err := strconv.Atoi(field)
			if err != nil || bpm <= 0 {
				return nil, fmt.Errorf("line %d: invalid BPM %q", line, field)
			}
			rates = append(rates, bpm)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, errors.New("no BPM values")
	}
	return rates, nil
}

type ratePrinter struct {
	out     io.Writer
	json    *json.Encoder
	noColor bool
}

func newRatePrinter(out io.Writer, format string, noColor bool) *ratePrinter {
	p := &ratePrinter{out: out, noColor: noColor}
	if format == "json" {
		p.json = json.NewEncoder(out)
	}
	return p
}

func (p *ratePrinter) rate(r monitor.Rate, z zone.Zone) error {
	now := time.Now()
	if p.json != nil {
		return p.json.Encode(rateLine{Time: now, BPM: r.BPM, Live: r.Live, Zone: z.Name, ZoneID: z.ID})
	}

	source := "simulated"
	if r.Live {
		source = "live"
	}
	label := zoneColor(z.Color, p.noColor).Sprintf("%-10s", z.Name)
	_, err := fmt.Fprintf(p.out, "%s  %3d bpm  %s  (%s)\n", now.Format("15:04:05"), r.BPM, label, source)
	return err
}

func (p *ratePrinter) state(out io.Writer, st device.ConnectionState) {
	if p.json != nil {
		return
	}
	fmt.Fprintf(out, "Connection: %s\n", st)
}

var zoneColors = map[string]color.Attribute{
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,
}

func zoneColor(name string, disabled bool) *color.Color {
	c := color.New(color.Bold)
	if attr, ok := zoneColors[strings.ToLower(name)]; ok {
		c.Add(attr)
	}
	if disabled {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c
}
