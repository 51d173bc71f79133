package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/pulsezone/internal/devicefactory"
	"github.com/srg/pulsezone/internal/monitor"
	"github.com/srg/pulsezone/internal/store"
	"github.com/srg/pulsezone/pkg/config"
)

// loadConfig reads --config (or the default config path) and applies store flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	explicit := path != ""
	if !explicit {
		path = config.DefaultConfigPath()
	}
	if explicit {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if storePath, _ := cmd.Flags().GetString("store"); storePath != "" {
		cfg.StorePath = storePath
	}
	return cfg, nil
}

// openStore opens the state store selected by flags and config.
func openStore(cmd *cobra.Command, cfg *config.Config) (store.Store, error) {
	if ephemeral, _ := cmd.Flags().GetBool("ephemeral"); ephemeral {
		return store.NewMemory(), nil
	}
	path, err := cfg.ResolvedStorePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store %s: %w", path, err)
	}
	return st, nil
}

// session bundles what a long-running command needs.
type session struct {
	cfg     *config.Config
	logger  *logrus.Logger
	store   store.Store
	monitor *monitor.Monitor
}

// openSession builds the monitor over a fresh BLE capability. Callers must Close it.
func openSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *logrus.Logger, sim monitor.Simulation) (*session, error) {
	st, err := openStore(cmd, cfg)
	if err != nil {
		return nil, err
	}

	capability := devicefactory.NewCapability(cfg.ConnectTimeout, logger)
	m, err := monitor.New(ctx, capability, st, monitor.Options{
		ScanTimeout:        cfg.ScanTimeout,
		ReconnectTimeout:   cfg.ReconnectTimeout,
		SimulationInterval: cfg.SimulationInterval,
		Simulation:         sim,
		InitialRate:        cfg.InitialRate,
		Logger:             logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, store: st, monitor: m}, nil
}

func (s *session) Close() {
	if err := s.monitor.Close(); err != nil {
		s.logger.WithError(err).Debug("BLE capability close failed")
	}
	if err := s.store.Close(); err != nil {
		s.logger.WithError(err).Warn("State store close failed")
	}
}

// interruptContext returns a context cancelled by Ctrl+C or SIGTERM.
func interruptContext(cmd *cobra.Command, what string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nCtrl+C pressed, %s...\n", what)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
