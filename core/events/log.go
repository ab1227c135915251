package events

import (
	"sync"
	"time"
)

type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// LogEntry is one row of the event log. Consecutive records with the same
// kind and source collapse into one entry with a RepeatCount.
type LogEntry struct {
	Timestamp   time.Time
	Source      Source
	Kind        string
	RepeatCount uint32
}

// Log keeps a collapsed history of wire events sent and received. It is safe
// for concurrent use.
type Log struct {
	mu       sync.Mutex
	entries  []LogEntry
	capacity int
	now      func() time.Time
}

// NewLog creates a log holding at most capacity entries, dropping the oldest
// first. A capacity of zero or less keeps everything.
func NewLog(capacity int) *Log {
	return &Log{capacity: capacity, now: time.Now}
}

// Record appends an entry, or bumps the last one when it has the same kind
// and source. The timestamp of a collapsed entry tracks the latest record.
func (l *Log) Record(source Source, kind string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if n := len(l.entries); n > 0 {
		last := &l.entries[n-1]
		if last.Kind == kind && last.Source == source {
			last.RepeatCount++
			last.Timestamp = now
			return
		}
	}

	l.entries = append(l.entries, LogEntry{Timestamp: now, Source: source, Kind: kind, RepeatCount: 1})
	if l.capacity > 0 && len(l.entries) > l.capacity {
		l.entries = append(l.entries[:0:0], l.entries[len(l.entries)-l.capacity:]...)
	}
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []LogEntry {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]LogEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
