package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/device"
	"github.com/srg/pulsezone/internal/heartrate"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/time/rate"
)

// connection drives the link to a single heart-rate peripheral.
type connection struct {
	m           *Monitor
	state       device.ConnectionState
	peripheral  string
	char        *device.Characteristic
	ready       bool
	lastBPM     int
	discovered  *orderedmap.OrderedMap[string, device.DiscoveredDevice]
	scanTimeout time.Duration
	scanTimer   *timer
	listeners   map[uint64]func(int)
	nextID      uint64
	malformed   *rate.Limiter
}

func newConnection(m *Monitor, scanTimeout time.Duration) *connection {
	return &connection{
		m:           m,
		state:       device.StateDisconnected,
		discovered:  orderedmap.New[string, device.DiscoveredDevice](),
		scanTimeout: scanTimeout,
		listeners:   make(map[uint64]func(int)),
		malformed:   rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

func (c *connection) setState(s device.ConnectionState) {
	if c.state == s {
		return
	}
	c.m.logger.WithFields(logrus.Fields{"from": c.state, "to": s}).Debug("Connection state changed")
	c.state = s
	c.m.state.Set(s)
	setIfChanged(c.m.scanning, s == device.StateScanning)
}

func (c *connection) busy() bool {
	return c.state == device.StateConnecting || c.state == device.StateConnected
}

func (c *connection) startScan() error {
	if c.busy() {
		return fmt.Errorf("cannot scan while %s: %w", c.state, device.ErrAlreadyConnected)
	}

	c.discovered = orderedmap.New[string, device.DiscoveredDevice]()
	c.publishDiscovered()

	if err := c.m.capability.Scan([]string{heartrate.ServiceUUID}); err != nil {
		err = device.NormalizeError(err)
		c.m.logger.WithError(err).Error("Failed to start scan")
		c.m.publishError(err)
		return err
	}

	c.setState(device.StateScanning)
	c.scanTimer.stop()
	c.scanTimer = c.m.loop.afterFunc("scan", c.scanTimeout, c.onScanTimeout)
	c.m.logger.WithField("timeout", c.scanTimeout).Info("Scanning for heart rate devices")
	return nil
}

func (c *connection) stopScan() {
	if c.state != device.StateScanning {
		return
	}
	c.haltScan()
	c.setState(device.StateDisconnected)
}

// haltScan stops the scan without leaving the scanning state.
func (c *connection) haltScan() {
	c.scanTimer.stop()
	c.scanTimer = nil
	if err := c.m.capability.StopScan(); err != nil {
		c.m.logger.WithError(device.NormalizeError(err)).Warn("Failed to stop scan")
	}
}

func (c *connection) onScanTimeout() {
	if c.state != device.StateScanning {
		return
	}
	c.m.logger.WithField("found", c.discovered.Len()).Info("Scan timed out")
	c.stopScan()
}

func (c *connection) connect(id string) error {
	if id == "" {
		return errors.New("device id is required")
	}
	if c.busy() {
		return fmt.Errorf("cannot connect to %s while %s: %w", id, c.state, device.ErrAlreadyConnected)
	}
	if c.state == device.StateScanning {
		c.haltScan()
	}

	c.m.rememberDevice(id)
	c.peripheral = id
	c.char = nil
	c.ready = false
	c.lastBPM = 0
	c.setState(device.StateConnecting)
	c.m.logger.WithField("device", id).Info("Connecting")

	if err := c.m.capability.Connect(id); err != nil {
		err = fmt.Errorf("%w: %w", device.ErrConnectFailure, device.NormalizeError(err))
		c.fail(err, false)
		return err
	}
	return nil
}

func (c *connection) disconnect() {
	if !c.busy() {
		return
	}
	id := c.peripheral
	c.drop(device.StateDisconnected)
	if err := c.m.capability.CancelConnection(id); err != nil {
		c.m.logger.WithError(device.NormalizeError(err)).WithField("device", id).Warn("Failed to cancel connection")
	}
	c.m.logger.WithField("device", id).Info("Disconnected")
}

// powerLost handles the adapter turning off.
func (c *connection) powerLost() {
	c.scanTimer.stop()
	c.scanTimer = nil
	c.drop(device.StateDisconnected)
}

// drop clears the link references and hands rate production back to the simulation.
func (c *connection) drop(next device.ConnectionState) {
	wasReady := c.ready
	c.peripheral = ""
	c.char = nil
	c.ready = false
	c.lastBPM = 0
	c.setState(next)
	if wasReady {
		c.m.onLinkLost()
	}
}

// fail moves to failed and publishes err. release cancels the link at the capability.
func (c *connection) fail(err error, release bool) {
	id := c.peripheral
	c.m.logger.WithError(err).WithField("device", id).Error("Connection failed")
	c.drop(device.StateFailed)
	c.m.publishError(err)
	if release && id != "" {
		if cerr := c.m.capability.CancelConnection(id); cerr != nil {
			c.m.logger.WithError(device.NormalizeError(cerr)).Warn("Failed to release connection")
		}
	}
}

func (c *connection) failDiscovery(err error) {
	c.fail(fmt.Errorf("%w: %w", device.ErrDiscoveryFailure, err), true)
}

func (c *connection) target(id string) bool {
	return id != "" && id == c.peripheral
}

func (c *connection) handle(e device.Event) {
	switch ev := e.(type) {
	case device.DeviceDiscovered:
		c.onDiscovered(ev)
	case device.Connected:
		c.onConnected(ev)
	case device.ConnectFailed:
		c.onConnectFailed(ev)
	case device.Disconnected:
		c.onDisconnected(ev)
	case device.ServicesDiscovered:
		c.onServices(ev)
	case device.CharacteristicsDiscovered:
		c.onCharacteristics(ev)
	case device.NotificationStateChanged:
		c.onNotificationState(ev)
	case device.ValueUpdated:
		c.onValue(ev)
	}
}

func (c *connection) onDiscovered(ev device.DeviceDiscovered) {
	if c.state != device.StateScanning {
		return
	}
	if ev.Name == "" || !device.ContainsUUID(ev.Services, heartrate.ServiceUUID) {
		return
	}
	if _, seen := c.discovered.Get(ev.ID); seen {
		return
	}
	d := device.DiscoveredDevice{ID: ev.ID, Name: ev.Name, RSSI: ev.RSSI}
	c.discovered.Set(ev.ID, d)
	c.publishDiscovered()
	c.m.logger.WithFields(logrus.Fields{"device": d.ID, "name": d.Name, "rssi": d.RSSI}).Info("Device discovered")
	c.m.reconnect.onDiscovered(d.ID)
}

func (c *connection) publishDiscovered() {
	list := make([]device.DiscoveredDevice, 0, c.discovered.Len())
	for pair := c.discovered.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value)
	}
	c.m.discovered.Set(list)
}

func (c *connection) onConnected(ev device.Connected) {
	if !c.target(ev.DeviceID) || c.state != device.StateConnecting {
		return
	}
	c.setState(device.StateConnected)
	c.m.logger.WithField("device", ev.DeviceID).Info("Connected, discovering services")
	if err := c.m.capability.DiscoverServices(ev.DeviceID, []string{heartrate.ServiceUUID}); err != nil {
		c.failDiscovery(device.NormalizeError(err))
	}
}

func (c *connection) onConnectFailed(ev device.ConnectFailed) {
	if !c.target(ev.DeviceID) || c.state != device.StateConnecting {
		return
	}
	c.fail(connectFailure(ev.Err), false)
}

func (c *connection) onDisconnected(ev device.Disconnected) {
	if !c.target(ev.DeviceID) {
		return
	}
	switch c.state {
	case device.StateConnecting:
		c.fail(connectFailure(ev.Err), false)
	case device.StateConnected:
		fields := logrus.Fields{"device": ev.DeviceID}
		if ev.Err != nil {
			fields["reason"] = ev.Err.Error()
		}
		c.m.logger.WithFields(fields).Warn("Peripheral disconnected")
		c.drop(device.StateDisconnected)
	}
}

func connectFailure(err error) error {
	if err == nil {
		return device.ErrConnectFailure
	}
	return fmt.Errorf("%w: %w", device.ErrConnectFailure, device.NormalizeError(err))
}

// pending reports whether the link is connected but not yet subscribed.
func (c *connection) pending(id string) bool {
	return c.target(id) && c.state == device.StateConnected && !c.ready
}

func (c *connection) onServices(ev device.ServicesDiscovered) {
	if !c.pending(ev.DeviceID) {
		return
	}
	if ev.Err != nil {
		c.failDiscovery(device.NormalizeError(ev.Err))
		return
	}
	if !device.ContainsUUID(ev.Services, heartrate.ServiceUUID) {
		c.failDiscovery(&device.NotFoundError{Resource: "service", UUIDs: []string{heartrate.ServiceUUID}})
		return
	}
	err := c.m.capability.DiscoverCharacteristics(ev.DeviceID, heartrate.ServiceUUID, []string{heartrate.MeasurementUUID})
	if err != nil {
		c.failDiscovery(device.NormalizeError(err))
	}
}

func (c *connection) onCharacteristics(ev device.CharacteristicsDiscovered) {
	if !c.pending(ev.DeviceID) || device.NormalizeUUID(ev.ServiceUUID) != heartrate.ServiceUUID {
		return
	}
	if ev.Err != nil {
		c.failDiscovery(device.NormalizeError(ev.Err))
		return
	}
	if !device.ContainsUUID(ev.Characteristics, heartrate.MeasurementUUID) {
		c.failDiscovery(&device.NotFoundError{
			Resource: "characteristic",
			UUIDs:    []string{heartrate.ServiceUUID, heartrate.MeasurementUUID},
		})
		return
	}

	char := device.Characteristic{
		DeviceID:    ev.DeviceID,
		ServiceUUID: heartrate.ServiceUUID,
		UUID:        heartrate.MeasurementUUID,
	}
	if err := c.m.capability.Subscribe(char); err != nil {
		c.failDiscovery(device.NormalizeError(err))
		return
	}

	c.char = &char
	c.ready = true
	c.m.logger.WithField("characteristic", char.String()).Info("Subscribed to heart rate measurements")
	c.m.onLinkReady(c)
}

func (c *connection) onNotificationState(ev device.NotificationStateChanged) {
	if !c.target(ev.Characteristic.DeviceID) || c.state != device.StateConnected {
		return
	}
	if device.NormalizeUUID(ev.Characteristic.UUID) != heartrate.MeasurementUUID {
		return
	}
	if ev.Err != nil {
		c.failDiscovery(device.NormalizeError(ev.Err))
		return
	}
	if ev.Enabled || !c.ready {
		return
	}

	id := c.peripheral
	c.m.logger.WithField("device", id).Warn("Peripheral stopped notifications")
	c.drop(device.StateDisconnected)
	if err := c.m.capability.CancelConnection(id); err != nil {
		c.m.logger.WithError(device.NormalizeError(err)).Warn("Failed to cancel connection")
	}
}

func (c *connection) onValue(ev device.ValueUpdated) {
	if !c.ready || !c.target(ev.Characteristic.DeviceID) {
		return
	}
	if device.NormalizeUUID(ev.Characteristic.UUID) != heartrate.MeasurementUUID {
		return
	}

	var sample heartrate.Measurement
	if err := sample.UnmarshalBinary(ev.Value); err != nil {
		entry := c.m.logger.WithError(err).WithField("bytes", len(ev.Value))
		if c.malformed.Allow() {
			entry.Warn("Dropping malformed heart rate payload")
		} else {
			entry.Debug("Dropping malformed heart rate payload")
		}
		return
	}
	if c.m.logger.IsLevelEnabled(logrus.DebugLevel) {
		c.m.logger.WithFields(logrus.Fields{
			"bpm":     sample.BPM,
			"contact": !sample.ContactSupported || sample.Contact,
			"energy":  sample.Energy,
			"rr":      sample.RR,
		}).Debug("Heart rate sample")
	}

	bpm := sample.BPM
	if bpm == c.lastBPM {
		return
	}
	c.lastBPM = bpm
	for _, fn := range c.listeners {
		fn(bpm)
	}
}

// OnRate implements RateProducer. Listeners run on the monitor loop.
func (c *connection) OnRate(fn func(bpm int)) (cancel func()) {
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	if c.lastBPM > 0 {
		fn(c.lastBPM)
	}
	return func() { delete(c.listeners, id) }
}
