package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/groutine"
)

var (
	// ErrClosed is returned by commands issued after the monitor stopped.
	ErrClosed = errors.New("monitor closed")
	// ErrNotStarted is returned by commands issued before Start.
	ErrNotStarted = errors.New("monitor not started")
)

const loopQueueSize = 256

// loop runs every mutation of monitor state on one goroutine.
type loop struct {
	queue    chan func()
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   *logrus.Logger
}

func newLoop(logger *logrus.Logger) *loop {
	return &loop{
		queue:  make(chan func(), loopQueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (l *loop) start(ctx context.Context) {
	groutine.Go(ctx, "monitor-loop", l.run)
}

func (l *loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case fn := <-l.queue:
			l.exec(fn)
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Error("Monitor loop task panicked")
		}
	}()
	fn()
}

// post queues fn. Blocks while the queue is full; returns false once the loop stopped.
func (l *loop) post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// do runs fn on the loop and waits for its result. Must not be called from the loop.
func (l *loop) do(fn func() error) error {
	errCh := make(chan error, 1)
	if !l.post(func() { errCh <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errCh:
		return err
	case <-l.done:
		select {
		case err := <-errCh:
			return err
		default:
			return ErrClosed
		}
	}
}

func (l *loop) shutdown() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// timer is a loop-owned timer. Its callback runs on the loop and never
// runs after stop, even when the underlying timer already fired.
type timer struct {
	kind    string
	t       *time.Timer
	stopped bool
}

func (tm *timer) stop() {
	if tm == nil || tm.stopped {
		return
	}
	tm.stopped = true
	tm.t.Stop()
}

// afterFunc runs fn on the loop once d elapses.
func (l *loop) afterFunc(kind string, d time.Duration, fn func()) *timer {
	tm := &timer{kind: kind}
	tm.t = time.AfterFunc(d, func() {
		l.post(func() {
			if tm.stopped {
				return
			}
			tm.stopped = true
			fn()
		})
	})
	return tm
}

// every runs fn on the loop each time d elapses until stopped.
func (l *loop) every(kind string, d time.Duration, fn func()) *timer {
	if d <= 0 {
		panic(fmt.Sprintf("monitor: %s interval must be positive", kind))
	}
	tm := &timer{kind: kind}
	var arm func()
	arm = func() {
		tm.t = time.AfterFunc(d, func() {
			l.post(func() {
				if tm.stopped {
					return
				}
				fn()
				if !tm.stopped {
					arm()
				}
			})
		})
	}
	arm()
	return tm
}
