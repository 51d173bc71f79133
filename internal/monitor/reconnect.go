package monitor

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/device"
)

// reconnector reconnects to the last used device when the adapter powers on.
type reconnector struct {
	m       *Monitor
	target  string
	active  bool
	timeout time.Duration
	timer   *timer
}

func newReconnector(m *Monitor, timeout time.Duration) *reconnector {
	return &reconnector{m: m, timeout: timeout}
}

func (r *reconnector) onPowerOn() {
	if r.m.conn.busy() {
		r.m.logger.Debug("Auto-connect skipped: link already in use")
		return
	}
	if r.m.conn.state == device.StateScanning {
		r.m.logger.Debug("Auto-connect skipped: scan in progress")
		return
	}
	id := r.m.lastDevice
	if id == "" {
		r.m.logger.Debug("Auto-connect skipped: no remembered device")
		return
	}

	if err := r.m.conn.startScan(); err != nil {
		r.m.logger.WithError(err).Warn("Auto-connect scan failed")
		return
	}

	r.target = id
	r.setActive(true)
	r.timer.stop()
	r.timer = r.m.loop.afterFunc("reconnect", r.timeout, r.onTimeout)
	r.m.logger.WithFields(logrus.Fields{"device": id, "timeout": r.timeout}).Info("Auto-connecting to remembered device")
}

func (r *reconnector) onDiscovered(id string) {
	if !r.active || id != r.target {
		return
	}
	r.supersede()
	if err := r.m.conn.connect(id); err != nil {
		r.m.logger.WithError(err).WithField("device", id).Warn("Auto-connect failed")
	}
}

func (r *reconnector) onTimeout() {
	if !r.active {
		return
	}
	r.m.logger.WithField("device", r.target).Info("Remembered device not found")
	r.supersede()
	r.m.conn.stopScan()
}

// supersede abandons a pending auto-connect attempt.
func (r *reconnector) supersede() {
	r.timer.stop()
	r.timer = nil
	r.target = ""
	r.setActive(false)
}

func (r *reconnector) setActive(v bool) {
	r.active = v
	setIfChanged(r.m.autoConnecting, v)
}
