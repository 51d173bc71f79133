package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/srg/pulsezone/internal/store"
	"github.com/srg/pulsezone/internal/zone"
)

func newZonesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Show or edit training zones",
	}

	var format string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the saved zone set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("%w '%s': must be one of [table json]", ErrInvalidFormat, format)
			}
			return withZones(cmd, func(set zone.Set, _ *zone.Classifier) error {
				return displayZones(cmd.OutOrStdout(), set, format)
			})
		},
	}
	listCmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")

	setCmd := &cobra.Command{
		Use:   "set NAME=START[:COLOR]...",
		Short: "Replace the zone set",
		Long: `Replace the zone set. Each argument names one zone and the BPM at which it starts.
Zones keep their id when a zone with the same name already exists.

Example:
  pulsezone zones set "Easy=90" "Tempo=130:yellow" "Hard=155:red"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withZones(cmd, func(current zone.Set, c *zone.Classifier) error {
				set, err := parseZones(args, current)
				if err != nil {
					return err
				}
				if _, err := c.ReplaceZones(set); err != nil {
					return err
				}
				return displayZones(cmd.OutOrStdout(), c.Zones(), "table")
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default zone set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withZones(cmd, func(_ zone.Set, c *zone.Classifier) error {
				if _, err := c.ReplaceZones(zone.Defaults()); err != nil {
					return err
				}
				return displayZones(cmd.OutOrStdout(), c.Zones(), "table")
			})
		},
	}

	cmd.AddCommand(listCmd, setCmd, resetCmd)
	return cmd
}

// withZones loads the saved zone set and runs fn with a classifier that persists
// replacements. Pending writes are flushed before returning.
func withZones(cmd *cobra.Command, fn func(zone.Set, *zone.Classifier) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	st, err := openStore(cmd, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var writeErr error
	writer := store.NewWriter(st, logger, func(key string, err error) {
		writeErr = fmt.Errorf("failed to save %s: %w", key, err)
	})

	set := zone.Load(cmd.Context(), st, logger)
	err = fn(set, zone.NewClassifier(set, writer, logger))
	writer.Close()
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true
	if writeErr != nil {
		logger.WithError(writeErr).Error("Zone set not saved")
	}
	return writeErr
}

// parseZones turns NAME=START[:COLOR] arguments into a zone set.
func parseZones(args []string, current zone.Set) (zone.Set, error) {
	set := make(zone.Set, 0, len(args))
	for _, arg := range args {
		name, rest, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w %q: expected NAME=START[:COLOR]", ErrInvalidZone, arg)
		}
		startStr, colorName, _ := strings.Cut(rest, ":")
		start, err := strconv.Atoi(strings.TrimSpace(startStr))
		if err != nil {
			return nil, fmt.Errorf("%w %q: start rate must be a number", ErrInvalidZone, arg)
		}

		id := ulid.Make().String()
		if existing, found := current.Lookup(name); found {
			id = existing.ID
			if colorName == "" {
				colorName = existing.Color
			}
		}
		set = append(set, zone.Zone{ID: id, Name: name, StartRate: start, Color: strings.TrimSpace(colorName)})
	}
	return set, nil
}

func displayZones(out io.Writer, set zone.Set, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(set)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFROM\tTO\tCOLOR\tID")
	for i, z := range set {
		upper := "-"
		if i+1 < len(set) {
			upper = strconv.Itoa(set[i+1].StartRate - 1)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", z.Name, z.StartRate, upper, z.Color, z.ID)
	}
	return w.Flush()
}
