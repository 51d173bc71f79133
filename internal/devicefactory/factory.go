// Package devicefactory selects the BLE capability used by commands.
package devicefactory

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/device"
	goble "github.com/srg/pulsezone/internal/device/go-ble"
)

// CapabilityFactory creates the device.Capability used by commands.
// This is a variable so that it can be overridden in tests.
var CapabilityFactory = func(connectTimeout time.Duration, logger *logrus.Logger) device.Capability {
	return goble.New(goble.Options{ConnectTimeout: connectTimeout, Logger: logger})
}

// NewCapability creates a capability via CapabilityFactory.
func NewCapability(connectTimeout time.Duration, logger *logrus.Logger) device.Capability {
	return CapabilityFactory(connectTimeout, logger)
}
