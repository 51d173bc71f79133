package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 10*time.Second, cfg.ReconnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, time.Second, cfg.SimulationInterval)
	assert.Equal(t, 50, cfg.SimulationFloor)
	assert.Equal(t, 200, cfg.SimulationCeiling)
	assert.Equal(t, 3, cfg.SimulationStep)
	assert.Equal(t, 70, cfg.InitialRate)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "silent by default", logLevel: "", want: logrus.PanicLevel},
		{name: "creates logger with debug level", logLevel: "debug", want: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", want: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", want: logrus.WarnLevel},
		{name: "invalid level falls back to info", logLevel: "loud", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.Equal(t, tt.want, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
scan_timeout: 5s
simulation_floor: 60
store_path: /tmp/pz.db
`), 0o600))

	cfg, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 60, cfg.SimulationFloor)
	assert.Equal(t, "/tmp/pz.db", cfg.StorePath)
	assert.Equal(t, 10*time.Second, cfg.ReconnectTimeout, "unset fields MUST keep defaults")
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"bad yaml":        "scan_timeout: [",
		"negative scan":   "scan_timeout: -1s",
		"inverted range":  "simulation_floor: 220",
		"zero step":       "simulation_step: -2",
		"bad log level":   "log_level: loud",
		"bad initial bpm": "initial_rate: -5",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			_, err := LoadFile(path)

			assert.Error(t, err)
		})
	}
}

func TestResolvedStorePath(t *testing.T) {
	cfg := &Config{StorePath: "/data/state.db"}
	path, err := cfg.ResolvedStorePath()
	require.NoError(t, err)
	assert.Equal(t, "/data/state.db", path)

	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("HOME", "/home/test")
	cfg.StorePath = ""
	path, err = cfg.ResolvedStorePath()
	require.NoError(t, err)
	assert.Equal(t, "pulsezone", filepath.Base(filepath.Dir(path)))
	assert.Equal(t, "state.yaml", filepath.Base(path))
}
