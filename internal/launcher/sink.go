package launcher

import (
	"fmt"
	"os"
	"sync"
)

const sinkBuffer = 256

// SerialSink funnels log lines from any number of goroutines into a single
// callback, one line at a time and in arrival order.
type SerialSink struct {
	fn   func(string)
	ch   chan string
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewSerialSink starts the goroutine that drains into fn.
func NewSerialSink(fn func(string)) *SerialSink {
	s := &SerialSink{
		fn:   fn,
		ch:   make(chan string, sinkBuffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for line := range s.ch {
			s.fn(line)
		}
	}()
	return s
}

// Log queues line. Lines sent after Close are dropped.
func (s *SerialSink) Log(line string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.ch <- line
}

// Close flushes queued lines and stops the drainer.
func (s *SerialSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
}

// Tee fans a line out to every non-nil sink.
func Tee(sinks ...func(string)) func(string) {
	return func(line string) {
		for _, sink := range sinks {
			if sink != nil {
				sink(line)
			}
		}
	}
}

var stdoutMu sync.Mutex

func stdoutSink(line string) {
	stdoutMu.Lock()
	defer stdoutMu.Unlock()
	fmt.Fprintln(os.Stdout, line)
}
