// internal/alertlog/log.go
package alertlog

import (
	"sync"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

const DefaultCapacity = 50

// Log is a newest-first, identifier-deduplicated, count-bounded list of alerts.
type Log struct {
	mu       sync.RWMutex
	entries  []data.Alert
	capacity int
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]data.Alert, 0, capacity),
		capacity: capacity,
	}
}

// Append puts alerts in front of the log in the given order, skipping identifiers
// that are already present, then trims to capacity. It returns the alerts that
// were actually added.
func (l *Log) Append(alerts []data.Alert) []data.Alert {
	if len(alerts) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(alerts)
}

func (l *Log) appendLocked(alerts []data.Alert) []data.Alert {
	seen := make(map[string]struct{}, len(l.entries)+len(alerts))
	for _, a := range l.entries {
		seen[a.ID] = struct{}{}
	}

	var added []data.Alert
	for _, a := range alerts {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		added = append(added, a)
	}
	if len(added) == 0 {
		return nil
	}

	merged := make([]data.Alert, 0, len(added)+len(l.entries))
	merged = append(merged, added...)
	merged = append(merged, l.entries...)
	if len(merged) > l.capacity {
		merged = merged[:l.capacity]
	}
	l.entries = merged
	return added
}

// Restore seeds the log with a previously saved snapshot (newest first).
func (l *Log) Restore(snapshot []data.Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]data.Alert, 0, l.capacity)
	l.appendLocked(snapshot)
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]data.Alert, 0, l.capacity)
}

// Snapshot returns a copy of the log, newest first.
func (l *Log) Snapshot() []data.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]data.Alert, len(l.entries))
	copy(result, l.entries)
	return result
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) Capacity() int { return l.capacity }
