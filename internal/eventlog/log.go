// Package eventlog keeps the bounded, newest-first record of everything the
// monitoring engine observes or decides.
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Capacity is the maximum number of retained entries. Appending beyond it
// silently drops the oldest.
const Capacity = 1000

// Importance classifies how much an entry matters for later analysis.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// EntityRef identifies the domain entity an entry is about.
type EntityRef struct {
	Kind string `json:"kind"` // task, quest, chapter, season, system
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Metadata carries provenance for an entry. Missing fields are filled with
// defaults on append.
type Metadata struct {
	Source        string      `json:"source"`
	Importance    Importance  `json:"importance"`
	CausedBy      string      `json:"caused_by,omitempty"`
	RelatedEvents []uuid.UUID `json:"related_events,omitempty"`
}

// Entry is one immutable log record.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Entity    EntityRef      `json:"entity"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metadata  Metadata       `json:"metadata"`
}

// Sink receives a copy of every appended entry. Used to mirror the in-memory
// log into durable storage; a sink must never block the caller.
type Sink interface {
	Record(entry Entry)
}

// Log is the append-only, size-bounded event log. Newest entries come first.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	sinks   []Sink
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// AddSink registers a mirror for future appends.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Append records an entry and returns its generated id. Append never fails;
// metadata defaults fill in a missing source or importance.
func (l *Log) Append(eventType string, entity EntityRef, payload map[string]any, meta Metadata) uuid.UUID {
	if meta.Source == "" {
		meta.Source = "system"
	}
	if meta.Importance == "" {
		meta.Importance = ImportanceLow
	}

	entry := Entry{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		Entity:    entity,
		Payload:   payload,
		Metadata:  meta,
	}

	l.mu.Lock()
	l.entries = append([]Entry{entry}, l.entries...)
	if len(l.entries) > Capacity {
		l.entries = l.entries[:Capacity]
	}
	sinks := l.sinks
	l.mu.Unlock()

	for _, s := range sinks {
		s.Record(entry)
	}

	return entry.ID
}

// Recent returns up to n of the newest entries.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[:n])
	return out
}

// ByType returns up to n of the newest entries of the given type.
func (l *Log) ByType(eventType string, n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Type == eventType {
			out = append(out, e)
			if n > 0 && len(out) == n {
				break
			}
		}
	}
	return out
}

// ByEntity returns up to n of the newest entries about the given entity.
func (l *Log) ByEntity(kind, id string, n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Entity.Kind == kind && e.Entity.ID == id {
			out = append(out, e)
			if n > 0 && len(out) == n {
				break
			}
		}
	}
	return out
}

// Len returns the current number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Restore replaces the log contents wholesale, truncating to capacity. Used
// when loading persisted state.
func (l *Log) Restore(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(entries) > Capacity {
		entries = entries[:Capacity]
	}
	l.entries = make([]Entry, len(entries))
	copy(l.entries, entries)
}
