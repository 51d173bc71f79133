package monitor

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Rate is one published heart-rate value and whether it came from a device.
type Rate struct {
	BPM  int  `json:"bpm"`
	Live bool `json:"live"`
}

// RateProducer delivers decoded device rates on the monitor loop.
// OnRate replays the producer's latest sample, if any, to the new listener.
type RateProducer interface {
	OnRate(fn func(bpm int)) (cancel func())
}

// Source names the active rate producer.
type Source string

const (
	SourceSimulated Source = "simulated"
	SourceDevice    Source = "device"
)

// arbiter keeps exactly one rate producer active.
type arbiter struct {
	m        *Monitor
	source   Source
	sim      Simulation
	interval time.Duration
	tick     *timer
	detach   func()
}

func newArbiter(m *Monitor, sim Simulation, interval time.Duration) *arbiter {
	return &arbiter{
		m:        m,
		source:   SourceSimulated,
		sim:      sim,
		interval: interval,
	}
}

func (a *arbiter) switchToDevice(p RateProducer) {
	a.tick.stop()
	a.tick = nil
	if a.detach != nil {
		a.detach()
	}
	a.source = SourceDevice
	a.detach = p.OnRate(a.onDeviceRate)
	a.m.live.Set(true)
	a.m.logger.Info("Rate source switched to device")
}

func (a *arbiter) switchToSimulation() {
	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
	a.source = SourceSimulated
	a.m.live.Set(false)
	a.tick.stop()
	a.tick = a.m.loop.every("simulation", a.interval, a.onTick)
	a.m.logger.WithField("interval", a.interval).Info("Rate source switched to simulation")
}

func (a *arbiter) stop() {
	a.tick.stop()
	a.tick = nil
	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
}

func (a *arbiter) onTick() {
	if a.source != SourceSimulated {
		return
	}
	next := a.sim.Next(a.m.rate.Get().BPM)
	if next <= 0 {
		return
	}
	a.m.publishRate(Rate{BPM: next, Live: false})
}

func (a *arbiter) onDeviceRate(bpm int) {
	if a.source != SourceDevice {
		return
	}
	if bpm <= 0 {
		a.m.logger.WithField("bpm", bpm).Debug("Discarding non-positive device rate")
		return
	}
	a.m.logger.WithFields(logrus.Fields{"bpm": bpm}).Debug("Device rate")
	a.m.publishRate(Rate{BPM: bpm, Live: true})
}
