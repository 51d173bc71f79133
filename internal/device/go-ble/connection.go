package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/device"
	"github.com/srg/pulsezone/internal/groutine"
)

// dial is an in-flight connection attempt.
type dial struct {
	cancel context.CancelFunc
}

// link is an established connection with the GATT objects discovered on it.
type link struct {
	id     string
	client ble.Client
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	services map[string]*ble.Service
	chars    map[string]*ble.Characteristic
}

func charKey(service, char string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(char)
}

// Connect dials deviceID and reports Connected or ConnectFailed.
func (c *Capability) Connect(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return fmt.Errorf("device address is empty")
	}
	dev, lifetime, err := c.started()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if _, ok := c.links[deviceID]; ok {
		c.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	if _, ok := c.dials[deviceID]; ok {
		c.mu.Unlock()
		return fmt.Errorf("connection to %s already in progress: %w", deviceID, device.ErrAlreadyConnected)
	}
	ctx, cancel := context.WithTimeout(lifetime, c.connectTimeout)
	attempt := &dial{cancel: cancel}
	c.dials[deviceID] = attempt
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"device":  deviceID,
		"timeout": c.connectTimeout,
	}).Info("Connecting to BLE device...")

	groutine.Go(ctx, "ble-dial", func(ctx context.Context) {
		defer cancel()
		client, err := dev.Dial(ctx, ble.NewAddr(deviceID))

		c.mu.Lock()
		current := c.dials[deviceID] == attempt
		if current {
			delete(c.dials, deviceID)
		}
		c.mu.Unlock()

		if !current {
			// Cancelled by CancelConnection or Close.
			if err == nil {
				_ = client.CancelConnection()
			}
			return
		}
		if err != nil {
			err = NormalizeError(err)
			c.logger.WithError(err).WithField("device", deviceID).Error("Failed to dial BLE device")
			c.emit(device.ConnectFailed{DeviceID: deviceID, Err: err})
			return
		}
		c.attach(lifetime, deviceID, client)
	})
	return nil
}

func (c *Capability) attach(lifetime context.Context, id string, client ble.Client) {
	ctx, cancel := context.WithCancel(lifetime)
	l := &link{
		id:       id,
		client:   client,
		ctx:      ctx,
		cancel:   cancel,
		services: make(map[string]*ble.Service),
		chars:    make(map[string]*ble.Characteristic),
	}

	c.mu.Lock()
	c.links[id] = l
	c.mu.Unlock()

	groutine.Go(ctx, "ble-link-monitor", func(ctx context.Context) {
		select {
		case <-client.Disconnected():
			if c.detach(l) {
				c.logger.WithField("device", id).Warn("BLE stack reported disconnection")
				c.emit(device.Disconnected{DeviceID: id, Err: device.ErrNotConnected})
			}
		case <-ctx.Done():
		}
	})

	c.logger.WithField("device", id).Info("BLE device connected")
	c.emit(device.Connected{DeviceID: id})
}

// detach forgets l. Reports false when l was already gone.
func (c *Capability) detach(l *link) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.links[l.id] != l {
		return false
	}
	delete(c.links, l.id)
	l.cancel()
	return true
}

func (c *Capability) link(id string) (*link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.links[id]
	if !ok {
		return nil, device.ErrNotConnected
	}
	return l, nil
}

// CancelConnection aborts a pending dial or tears down an established link.
// No events are reported for a link cancelled this way.
func (c *Capability) CancelConnection(deviceID string) error {
	c.mu.Lock()
	if attempt, ok := c.dials[deviceID]; ok {
		delete(c.dials, deviceID)
		c.mu.Unlock()
		attempt.cancel()
		c.logger.WithField("device", deviceID).Debug("Connection attempt cancelled")
		return nil
	}
	l, ok := c.links[deviceID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if !c.detach(l) {
		return nil
	}

	groutine.Go(context.Background(), "ble-disconnect", func(context.Context) {
		if err := l.client.ClearSubscriptions(); err != nil {
			c.logger.WithError(NormalizeError(err)).Debug("Failed to clear subscriptions")
		}
		if err := l.client.CancelConnection(); err != nil {
			c.logger.WithError(NormalizeError(err)).WithField("device", deviceID).Warn("BLE device disconnected with errors")
			return
		}
		c.logger.WithField("device", deviceID).Info("BLE device disconnected")
	})
	return nil
}

func parseUUIDs(ids []string) ([]ble.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]ble.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := ble.Parse(device.NormalizeUUID(id))
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", id, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// DiscoverServices reports ServicesDiscovered for deviceID.
func (c *Capability) DiscoverServices(deviceID string, serviceIDs []string) error {
	l, err := c.link(deviceID)
	if err != nil {
		return err
	}
	filter, err := parseUUIDs(serviceIDs)
	if err != nil {
		return err
	}

	groutine.Go(l.ctx, "ble-discover-services", func(ctx context.Context) {
		svcs, err := l.client.DiscoverServices(filter)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.emit(device.ServicesDiscovered{DeviceID: deviceID, Err: NormalizeError(err)})
			return
		}

		found := make([]string, 0, len(svcs))
		l.mu.Lock()
		for _, s := range svcs {
			id := device.NormalizeUUID(s.UUID.String())
			l.services[id] = s
			found = append(found, id)
		}
		l.mu.Unlock()

		c.logger.WithFields(logrus.Fields{"device": deviceID, "services": found}).Debug("Services discovered")
		c.emit(device.ServicesDiscovered{DeviceID: deviceID, Services: found})
	})
	return nil
}

// DiscoverCharacteristics reports CharacteristicsDiscovered for a discovered service.
// Descriptors are discovered too so the CCCD is known before Subscribe.
func (c *Capability) DiscoverCharacteristics(deviceID, serviceID string, charIDs []string) error {
	l, err := c.link(deviceID)
	if err != nil {
		return err
	}
	svcID := device.NormalizeUUID(serviceID)
	l.mu.Lock()
	svc, ok := l.services[svcID]
	l.mu.Unlock()
	if !ok {
		return &device.NotFoundError{Resource: "service", UUIDs: []string{serviceID}}
	}
	filter, err := parseUUIDs(charIDs)
	if err != nil {
		return err
	}

	groutine.Go(l.ctx, "ble-discover-characteristics", func(ctx context.Context) {
		chars, err := l.client.DiscoverCharacteristics(filter, svc)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.emit(device.CharacteristicsDiscovered{DeviceID: deviceID, ServiceUUID: svcID, Err: NormalizeError(err)})
			return
		}

		found := make([]string, 0, len(chars))
		for _, ch := range chars {
			if _, err := l.client.DiscoverDescriptors(nil, ch); err != nil {
				c.logger.WithError(NormalizeError(err)).WithField("characteristic", ch.UUID.String()).Debug("Descriptor discovery failed")
			}
			id := device.NormalizeUUID(ch.UUID.String())
			l.mu.Lock()
			l.chars[charKey(svcID, id)] = ch
			l.mu.Unlock()
			found = append(found, id)
		}

		c.emit(device.CharacteristicsDiscovered{DeviceID: deviceID, ServiceUUID: svcID, Characteristics: found})
	})
	return nil
}

// Subscribe enables notifications (or indications) on char. Each value is
// reported as ValueUpdated; the outcome as NotificationStateChanged.
func (c *Capability) Subscribe(char device.Characteristic) error {
	l, err := c.link(char.DeviceID)
	if err != nil {
		return err
	}
	l.mu.Lock()
	bc, ok := l.chars[charKey(char.ServiceUUID, char.UUID)]
	l.mu.Unlock()
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{char.ServiceUUID, char.UUID}}
	}
	if bc.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return fmt.Errorf("characteristic %s does not support notifications", char)
	}
	indicate := bc.Property&ble.CharNotify == 0

	groutine.Go(l.ctx, "ble-subscribe", func(ctx context.Context) {
		err := l.client.Subscribe(bc, indicate, func(data []byte) {
			if ctx.Err() != nil {
				return
			}
			c.emit(device.ValueUpdated{Characteristic: char, Value: append([]byte(nil), data...)})
		})
		if ctx.Err() != nil {
			return
		}
		err = NormalizeError(err)
		if err != nil {
			c.logger.WithError(err).WithField("characteristic", char.String()).Error("Failed to subscribe to characteristic notifications")
		} else {
			c.logger.WithField("characteristic", char.String()).Info("Subscribed to characteristic notifications")
		}
		c.emit(device.NotificationStateChanged{Characteristic: char, Enabled: err == nil, Err: err})
	})
	return nil
}

// IsConnected reports whether a link to deviceID is established.
func (c *Capability) IsConnected(deviceID string) bool {
	_, err := c.link(deviceID)
	return !errors.Is(err, device.ErrNotConnected)
}
