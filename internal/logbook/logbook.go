package logbook

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const defaultCapacity = 500

// Entry is one console line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// String renders the entry the way the console shows it: "[15:04:05] msg".
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message)
}

// Logbook is the console buffer shared between the launcher goroutines and
// the UI. Every method is safe for concurrent use.
type Logbook struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	total    int
	now      func() time.Time
	updates  chan struct{}
}

// Option customizes a Logbook during construction.
type Option func(*Logbook)

// WithClock overrides the clock used for entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		l.now = clock
	}
}

// WithCapacity bounds how many entries are retained in memory.
func WithCapacity(n int) Option {
	return func(l *Logbook) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// New creates an empty logbook.
func New(opts ...Option) *Logbook {
	l := &Logbook{
		capacity: defaultCapacity,
		now:      time.Now,
		updates:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LevelOf infers the severity from the launcher's message prefix.
func LevelOf(message string) Level {
	switch {
	case strings.HasPrefix(message, "[Error]"):
		return LevelError
	case strings.HasPrefix(message, "[Warn]"):
		return LevelWarn
	default:
		return LevelInfo
	}
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	message = strings.TrimRight(message, "\r\n")
	if strings.TrimSpace(message) == "" {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Time: l.now(), Level: level, Message: message})
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append([]Entry(nil), l.entries[over:]...)
	}
	l.total++
	l.mu.Unlock()

	select {
	case l.updates <- struct{}{}:
	default:
	}
}

// Record appends message with a level inferred from its prefix. It has the
// func(string) shape expected by the launcher's log sink.
func (l *Logbook) Record(message string) {
	l.Append(LevelOf(message), message)
}

// Updates delivers a coalesced signal after entries are appended.
func (l *Logbook) Updates() <-chan struct{} {
	return l.updates
}

// Tail returns up to maxLines of the most recent rendered entries and the
// total number of entries ever appended.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries
	if len(entries) > maxLines {
		entries = entries[len(entries)-maxLines:]
	}
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = entry.String()
	}
	return lines, l.total
}

// Entries returns a copy of the retained entries.
func (l *Logbook) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Len reports how many entries are retained.
func (l *Logbook) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
