package testutils

import (
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// NewTestLogger returns a debug logger that writes through t.Log, so output
// only shows for failing or verbose tests. Lines logged after the test ends are dropped.
func NewTestLogger(t testing.TB) *logrus.Logger {
	w := &testLogWriter{t: t}
	t.Cleanup(w.close)

	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return logger
}

type testLogWriter struct {
	mu     sync.Mutex
	t      testing.TB
	closed bool
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.t.Log(strings.TrimRight(string(p), "\n"))
	}
	return len(p), nil
}

func (w *testLogWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
