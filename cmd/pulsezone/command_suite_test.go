package main

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/device"
	"github.com/srg/pulsezone/internal/devicefactory"
	"github.com/srg/pulsezone/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent fake device identification
const (
	TestDeviceAddress1 = "AA:BB:CC:DD:EE:01"
	TestDeviceAddress2 = "AA:BB:CC:DD:EE:02"
)

// CommandTestSuite runs commands against a FakeCapability and a private config directory.
// All cmd/pulsezone test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	Fake      *testutils.FakeCapability
	ConfigDir string

	originalFactory func(time.Duration, *logrus.Logger) device.Capability
}

func (s *CommandTestSuite) SetupTest() {
	s.ConfigDir = s.T().TempDir()
	s.T().Setenv("XDG_CONFIG_HOME", s.ConfigDir)
	s.T().Setenv("HOME", s.ConfigDir)

	s.Fake = testutils.NewFakeCapability()
	s.originalFactory = devicefactory.CapabilityFactory
	devicefactory.CapabilityFactory = func(time.Duration, *logrus.Logger) device.Capability {
		return s.Fake
	}
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.CapabilityFactory = s.originalFactory
}

// ExecuteCommand runs a fresh root command with args, returns combined output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// ExecuteCommandSplit runs a fresh root command keeping stdout and stderr apart.
func (s *CommandTestSuite) ExecuteCommandSplit(args ...string) (string, string, error) {
	cmd := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// StorePath returns a YAML state file inside the test config directory.
func (s *CommandTestSuite) StorePath() string {
	return filepath.Join(s.ConfigDir, "state.yaml")
}

// WriteFile writes content to name inside the test config directory and returns its path.
func (s *CommandTestSuite) WriteFile(name, content string) string {
	path := filepath.Join(s.ConfigDir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600), "test file MUST be written")
	return path
}
