package store

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsezone/internal/groutine"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrorHandler is called from the writer goroutine when a write fails.
type ErrorHandler func(key string, err error)

// Writer applies writes to a Store on a single background goroutine.
//
// Put never blocks. Pending writes to the same key are coalesced so the
// latest value wins; keys are flushed in first-queued order.
type Writer struct {
	store   Store
	logger  *logrus.Logger
	onError ErrorHandler

	mu       sync.Mutex
	cond     *sync.Cond
	pending  *orderedmap.OrderedMap[string, []byte]
	inflight int
	closed   bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewWriter starts the writer goroutine. onError may be nil.
func NewWriter(s Store, logger *logrus.Logger, onError ErrorHandler) *Writer {
	if logger == nil {
		logger = logrus.New()
	}
	w := &Writer{
		store:   s,
		logger:  logger,
		onError: onError,
		pending: orderedmap.New[string, []byte](),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	groutine.Go(context.Background(), "store-writer", w.run)
	return w
}

// Put queues a write. It returns false when the writer is closed.
func (w *Writer) Put(key string, value []byte) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.pending.Set(key, append([]byte(nil), value...))
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush blocks until every write queued so far has been attempted.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.pending.Len() > 0 || w.inflight > 0 {
		w.cond.Wait()
	}
}

// Close drains pending writes and stops the goroutine. Safe to call more than once.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	<-w.done
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain(ctx)
		case <-w.stop:
			w.drain(ctx)
			return
		}
	}
}

func (w *Writer) drain(ctx context.Context) {
	for {
		w.mu.Lock()
		pair := w.pending.Oldest()
		if pair == nil {
			w.cond.Broadcast()
			w.mu.Unlock()
			return
		}
		key, value := pair.Key, pair.Value
		w.pending.Delete(key)
		w.inflight++
		w.mu.Unlock()

		if err := w.store.Set(ctx, key, value); err != nil {
			w.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err,
			}).Error("Persistence write failed")
			if w.onError != nil {
				w.onError(key, err)
			}
		} else {
			w.logger.WithField("key", key).Debug("Persisted value")
		}

		w.mu.Lock()
		w.inflight--
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}
