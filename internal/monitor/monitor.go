// Package monitor is the core of the heart-rate zone monitor.
//
// A single loop goroutine owns the connection state machine, the auto-reconnect
// policy, the rate source arbiter and the zone classifier. Capability events and
// commands are posted onto that loop; observers read state through signals.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/device"
	"github.com/srg/pulsezone/internal/signal"
	"github.com/srg/pulsezone/internal/store"
	"github.com/srg/pulsezone/internal/zone"
)

// Options tunes a Monitor. Zero durations fall back to the defaults below.
type Options struct {
	ScanTimeout        time.Duration
	ReconnectTimeout   time.Duration
	SimulationInterval time.Duration
	Simulation         Simulation
	InitialRate        int
	Logger             *logrus.Logger
}

const (
	DefaultScanTimeout        = 15 * time.Second
	DefaultReconnectTimeout   = 10 * time.Second
	DefaultSimulationInterval = time.Second
	DefaultInitialRate        = 70
)

// Monitor connects a BLE capability, a store and the zone classifier.
type Monitor struct {
	logger     *logrus.Logger
	capability device.Capability
	writer     *store.Writer
	loop       *loop

	conn       *connection
	reconnect  *reconnector
	arbiter    *arbiter
	classifier *zone.Classifier
	lastDevice string

	rate           *signal.Signal[Rate]
	zone           *signal.Signal[zone.Zone]
	zones          *signal.Signal[zone.Set]
	state          *signal.Signal[device.ConnectionState]
	discovered     *signal.Signal[[]device.DiscoveredDevice]
	scanning       *signal.Signal[bool]
	autoConnecting *signal.Signal[bool]
	live           *signal.Signal[bool]
	errors         *signal.Signal[error]

	started   atomic.Bool
	closeOnce sync.Once
}

// New builds a monitor. Persisted zones and the last device id are read from st;
// read failures fall back to defaults.
func New(ctx context.Context, capability device.Capability, st store.Store, opts Options) (*Monitor, error) {
	if capability == nil {
		return nil, errors.New("monitor: capability is required")
	}
	if st == nil {
		return nil, errors.New("monitor: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	if opts.ReconnectTimeout <= 0 {
		opts.ReconnectTimeout = DefaultReconnectTimeout
	}
	if opts.SimulationInterval <= 0 {
		opts.SimulationInterval = DefaultSimulationInterval
	}
	if opts.InitialRate <= 0 {
		opts.InitialRate = DefaultInitialRate
	}
	if opts.Simulation == nil {
		opts.Simulation = NewRandomWalk(50, 200, 3, 0)
	}

	m := &Monitor{
		logger:         logger,
		capability:     capability,
		loop:           newLoop(logger),
		rate:           signal.New(Rate{BPM: opts.InitialRate}),
		state:          signal.New(device.StateDisconnected),
		discovered:     signal.New([]device.DiscoveredDevice{}),
		scanning:       signal.New(false),
		autoConnecting: signal.New(false),
		live:           signal.New(false),
		errors:         signal.New[error](nil),
	}
	m.writer = store.NewWriter(st, logger, func(key string, err error) {
		m.publishError(err)
	})

	m.classifier = zone.NewClassifier(zone.Load(ctx, st, logger), m.writer, logger)
	active, _ := m.classifier.Update(opts.InitialRate)
	m.zone = signal.New(active)
	m.zones = signal.New(m.classifier.Zones())
	m.lastDevice = loadLastDevice(ctx, st, logger)

	m.conn = newConnection(m, opts.ScanTimeout)
	m.reconnect = newReconnector(m, opts.ReconnectTimeout)
	m.arbiter = newArbiter(m, opts.Simulation, opts.SimulationInterval)
	return m, nil
}

func loadLastDevice(ctx context.Context, st store.Store, logger *logrus.Logger) string {
	data, err := st.Get(ctx, store.KeyLastDeviceID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.WithError(err).Warn("Failed to read last device id")
		}
		return ""
	}
	return string(data)
}

// Start runs the loop, starts simulated rates and hands the event sink to the
// capability. A capability start failure is returned; the monitor keeps running
// on simulated data.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("monitor: already started")
	}
	m.loop.start(ctx)
	if err := m.loop.do(func() error {
		m.arbiter.switchToSimulation()
		return nil
	}); err != nil {
		return err
	}

	if err := m.capability.Start(m); err != nil {
		err = device.NormalizeError(err)
		m.logger.WithError(err).Warn("BLE capability unavailable, continuing with simulated data")
		m.publishError(err)
		return err
	}
	return nil
}

// Close stops timers, the loop, the capability and flushes pending writes.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.started.Load() {
			_ = m.loop.do(func() error {
				m.reconnect.supersede()
				m.conn.scanTimer.stop()
				m.arbiter.stop()
				return nil
			})
			m.loop.shutdown()
		}
		err = m.capability.Close()
		m.writer.Close()
	})
	return err
}

// HandleEvent implements device.EventSink.
func (m *Monitor) HandleEvent(e device.Event) {
	m.loop.post(func() { m.dispatch(e) })
}

func (m *Monitor) dispatch(e device.Event) {
	ev, ok := e.(device.PowerStateChanged)
	if !ok {
		m.conn.handle(e)
		return
	}

	if ev.Err != nil {
		m.publishError(device.NormalizeError(ev.Err))
	}
	if ev.On {
		m.logger.Info("Bluetooth powered on")
		m.reconnect.onPowerOn()
		return
	}
	m.logger.Warn("Bluetooth powered off")
	m.reconnect.supersede()
	m.conn.powerLost()
}

// StartScan begins a scan for heart-rate peripherals.
func (m *Monitor) StartScan() error {
	return m.exec(func() error {
		m.reconnect.supersede()
		return m.conn.startScan()
	})
}

// StopScan stops an active scan. No-op otherwise.
func (m *Monitor) StopScan() error {
	return m.exec(func() error {
		m.reconnect.supersede()
		m.conn.stopScan()
		return nil
	})
}

// Connect starts connecting to the peripheral with the given id.
func (m *Monitor) Connect(id string) error {
	return m.exec(func() error {
		m.reconnect.supersede()
		return m.conn.connect(id)
	})
}

// Disconnect tears down the current link. No-op when not connecting or connected.
func (m *Monitor) Disconnect() error {
	return m.exec(func() error {
		m.reconnect.supersede()
		m.conn.disconnect()
		return nil
	})
}

// ReplaceZones installs and persists a new zone set.
func (m *Monitor) ReplaceZones(set zone.Set) error {
	return m.exec(func() error {
		active, err := m.classifier.ReplaceZones(set)
		if err != nil {
			return err
		}
		m.zones.Set(m.classifier.Zones())
		setIfChanged(m.zone, active)
		return nil
	})
}

// SwitchToSimulation makes the simulation the rate source.
func (m *Monitor) SwitchToSimulation() error {
	return m.exec(func() error {
		m.arbiter.switchToSimulation()
		return nil
	})
}

// SwitchToDevice makes the connected peripheral the rate source.
func (m *Monitor) SwitchToDevice() error {
	return m.exec(func() error {
		if !m.conn.ready {
			return device.ErrNotConnected
		}
		if m.arbiter.source != SourceDevice {
			m.arbiter.switchToDevice(m.conn)
		}
		return nil
	})
}

// LastDevice returns the remembered device id, or "" if none.
func (m *Monitor) LastDevice() string {
	var id string
	_ = m.exec(func() error {
		id = m.lastDevice
		return nil
	})
	return id
}

// Sync waits until everything posted before it has been processed.
func (m *Monitor) Sync() error {
	return m.exec(func() error { return nil })
}

// Flush waits for queued persistence writes.
func (m *Monitor) Flush() {
	m.writer.Flush()
}

func (m *Monitor) Rate() signal.Observable[Rate] { return m.rate }
func (m *Monitor) Zone() signal.Observable[zone.Zone] { return m.zone }
func (m *Monitor) Zones() signal.Observable[zone.Set] { return m.zones }
func (m *Monitor) State() signal.Observable[device.ConnectionState] { return m.state }
func (m *Monitor) Discovered() signal.Observable[[]device.DiscoveredDevice] {
	return m.discovered
}
func (m *Monitor) Scanning() signal.Observable[bool] { return m.scanning }
func (m *Monitor) AutoConnecting() signal.Observable[bool] { return m.autoConnecting }
func (m *Monitor) Live() signal.Observable[bool] { return m.live }
func (m *Monitor) Errors() signal.Observable[error] { return m.errors }

func (m *Monitor) publishRate(r Rate) {
	m.rate.Set(r)
	if active, changed := m.classifier.Update(r.BPM); changed {
		m.zone.Set(active)
		m.logger.WithFields(logrus.Fields{"zone": active.Name, "bpm": r.BPM}).Info("Zone changed")
	}
}

func (m *Monitor) publishError(err error) {
	if err != nil {
		m.errors.Set(err)
	}
}

func (m *Monitor) rememberDevice(id string) {
	if id == m.lastDevice {
		return
	}
	m.lastDevice = id
	if !m.writer.Put(store.KeyLastDeviceID, []byte(id)) {
		m.logger.WithField("device", id).Warn("Last device id not persisted: writer closed")
	}
}

func (m *Monitor) onLinkReady(p RateProducer) {
	m.arbiter.switchToDevice(p)
}

func (m *Monitor) onLinkLost() {
	if m.arbiter.source == SourceDevice {
		m.arbiter.switchToSimulation()
	}
}

// exec runs fn on the loop and waits for it.
func (m *Monitor) exec(fn func() error) error {
	if !m.started.Load() {
		return ErrNotStarted
	}
	return m.loop.do(fn)
}

func setIfChanged[T comparable](s *signal.Signal[T], v T) {
	if s.Get() != v {
		s.Set(v)
	}
}
