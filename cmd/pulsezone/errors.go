package main

import (
	"errors"
	"fmt"

	"github.com/srg/pulsezone/internal/device"
	"github.com/srg/pulsezone/internal/zone"
)

// Command-level errors
var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrInvalidZone   = errors.New("invalid zone")
)

// FormatUserError turns internal errors into messages for the terminal.
func FormatUserError(err error) string {
	var notFound *device.NotFoundError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or no adapter is available"
	case errors.Is(err, device.ErrAlreadyConnected):
		return "a scan or connection is already in progress"
	case errors.Is(err, device.ErrNotConnected):
		return "no heart-rate sensor is connected"
	case errors.As(err, &notFound):
		return fmt.Sprintf("device does not expose the heart-rate %s", notFound.Resource)
	case errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("timed out: %s", err)
	case errors.Is(err, zone.ErrEmptyZoneSet),
		errors.Is(err, zone.ErrDuplicateStartRate),
		errors.Is(err, zone.ErrInvalidZoneStartBPM):
		return fmt.Sprintf("zones rejected: %s", err)
	}
	return err.Error()
}
