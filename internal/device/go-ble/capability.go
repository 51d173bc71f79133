// Package goble implements device.Capability on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/device"
)

const DefaultConnectTimeout = 30 * time.Second

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDevice

// Options configures a Capability.
type Options struct {
	ConnectTimeout time.Duration
	Logger         *logrus.Logger
}

// Capability drives a local BLE adapter. Blocking go-ble calls run on named
// goroutines and their outcome is reported as device events.
type Capability struct {
	logger         *logrus.Logger
	connectTimeout time.Duration

	mu         sync.Mutex
	dev        ble.Device
	sink       device.EventSink
	ctx        context.Context
	cancel     context.CancelFunc
	scanCancel context.CancelFunc
	dials      map[string]*dial
	links      map[string]*link
}

// New creates a capability. The adapter is opened by Start.
func New(opts Options) *Capability {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Capability{
		logger:         logger,
		connectTimeout: timeout,
		dials:          make(map[string]*dial),
		links:          make(map[string]*link),
	}
}

// Start opens the adapter and reports its power state to sink.
func (c *Capability) Start(sink device.EventSink) error {
	c.mu.Lock()
	if c.dev != nil {
		c.mu.Unlock()
		return errors.New("BLE capability already started")
	}
	c.sink = sink
	c.mu.Unlock()

	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		c.logger.WithError(err).Error("Failed to open BLE adapter")
		sink.HandleEvent(device.PowerStateChanged{On: false, Err: err})
		return err
	}

	c.mu.Lock()
	c.dev = dev
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	c.logger.Info("BLE adapter ready")
	sink.HandleEvent(device.PowerStateChanged{On: true})
	return nil
}

// Close cancels scans and dials, drops every link and stops the adapter.
func (c *Capability) Close() error {
	c.mu.Lock()
	dev := c.dev
	if dev == nil {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	c.dev = nil
	links := c.links
	c.links = make(map[string]*link)
	c.dials = make(map[string]*dial)
	c.scanCancel = nil
	c.mu.Unlock()

	for id, l := range links {
		l.cancel()
		if err := l.client.CancelConnection(); err != nil {
			c.logger.WithError(NormalizeError(err)).WithField("device", id).Warn("Failed to cancel connection on close")
		}
	}

	if err := dev.Stop(); err != nil {
		return NormalizeError(err)
	}
	c.logger.Debug("BLE adapter stopped")
	return nil
}

func (c *Capability) emit(e device.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink.HandleEvent(e)
	}
}

// started returns the adapter and lifetime context, or ErrNotInitialized.
func (c *Capability) started() (ble.Device, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return nil, nil, device.ErrNotInitialized
	}
	return c.dev, c.ctx, nil
}

var _ device.Capability = (*Capability)(nil)
