package goble

import (
	"context"
	"errors"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/device"
	"github.com/srg/pulsezone/internal/groutine"
)

// Scan starts scanning and reports advertisements matching serviceFilter.
// A running scan is replaced.
func (c *Capability) Scan(serviceFilter []string) error {
	var filter []string
	if len(serviceFilter) > 0 {
		var err error
		if filter, err = device.ValidateUUID(serviceFilter...); err != nil {
			return err
		}
	}
	dev, lifetime, err := c.started()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(lifetime)
	c.mu.Lock()
	if c.scanCancel != nil {
		c.scanCancel()
	}
	c.scanCancel = cancel
	c.mu.Unlock()

	c.logger.WithField("filter", filter).Debug("Starting BLE scan")
	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		err := dev.Scan(ctx, false, func(adv ble.Advertisement) {
			c.onAdvertisement(filter, adv)
		})
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		err = NormalizeError(err)
		c.logger.WithError(err).Error("BLE scan failed")
		if errors.Is(err, device.ErrBluetoothOff) {
			c.emit(device.PowerStateChanged{On: false, Err: err})
		}
	})
	return nil
}

// StopScan stops the running scan, if any.
func (c *Capability) StopScan() error {
	c.mu.Lock()
	cancel := c.scanCancel
	c.scanCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.logger.Debug("BLE scan stopped")
	}
	return nil
}

func (c *Capability) onAdvertisement(filter []string, adv ble.Advertisement) {
	services := make([]string, 0, len(adv.Services()))
	for _, u := range adv.Services() {
		services = append(services, device.NormalizeUUID(u.String()))
	}
	if len(filter) > 0 && !matchesAny(services, filter) {
		return
	}

	id := adv.Addr().String()
	c.logger.WithFields(logrus.Fields{
		"device": id,
		"name":   adv.LocalName(),
		"rssi":   adv.RSSI(),
	}).Trace("Advertisement")

	c.emit(device.DeviceDiscovered{
		ID:       id,
		Name:     adv.LocalName(),
		RSSI:     adv.RSSI(),
		Services: services,
	})
}

func matchesAny(services, filter []string) bool {
	for _, f := range filter {
		if device.ContainsUUID(services, f) {
			return true
		}
	}
	return false
}
