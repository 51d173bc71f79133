package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// CountdownPrinter shows "<prefix> (Ns)" counting down on a terminal line.
//
//	p := NewCountdownPrinter(os.Stderr, "Scanning for heart-rate sensors", 15*time.Second)
//	p.Start()
//	defer p.Stop()
//
// On a non-terminal writer it prints nothing.
type CountdownPrinter struct {
	out      io.Writer
	prefix   string
	duration time.Duration
	enabled  bool
	started  bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewCountdownPrinter(out io.Writer, prefix string, duration time.Duration) *CountdownPrinter {
	return &CountdownPrinter{
		out:      out,
		prefix:   prefix,
		duration: duration,
		enabled:  isTerminal(out),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins updating the line in a background goroutine.
func (p *CountdownPrinter) Start() {
	p.started = true
	if !p.enabled {
		close(p.done)
		return
	}

	start := time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				// Round to the nearest second, 3.7s -> 4s
				remaining := p.duration - time.Since(start)
				seconds := 0
				if remaining > 0 {
					seconds = int(remaining.Seconds() + 0.5)
				}
				fmt.Fprintf(p.out, "\r%s (%ds)   ", p.prefix, seconds)
			}
		}
	}()
}

// Stop clears the line. Safe to call more than once.
func (p *CountdownPrinter) Stop() {
	p.stopOnce.Do(func() {
		if !p.started {
			return
		}
		close(p.stop)
		<-p.done
		if p.enabled {
			fmt.Fprint(p.out, clearLineSequence)
		}
	})
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
