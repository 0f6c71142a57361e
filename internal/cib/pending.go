package cib

import "slices"

// SchemaEntry is the pending log entry recorded by schema changes.
const SchemaEntry = "<schema>"

// PendingLog records the ids changed since the baseline was last
// refreshed, in the order they first changed. Entries are only added until
// the log is cleared by a successful commit.
type PendingLog struct {
	entries []string
	seen    map[string]bool
}

func newPendingLog() *PendingLog {
	return &PendingLog{seen: make(map[string]bool)}
}

// Record appends id unless it is already present.
func (l *PendingLog) Record(id string) {
	if l.seen[id] {
		return
	}
	l.seen[id] = true
	l.entries = append(l.entries, id)
}

// Contains reports whether id has been recorded.
func (l *PendingLog) Contains(id string) bool {
	return l.seen[id]
}

// Entries returns a copy of the recorded ids.
func (l *PendingLog) Entries() []string {
	return slices.Clone(l.entries)
}

// Len returns the number of entries.
func (l *PendingLog) Len() int {
	return len(l.entries)
}

// Clear empties the log.
func (l *PendingLog) Clear() {
	l.entries = nil
	l.seen = make(map[string]bool)
}

func (l *PendingLog) clone() *PendingLog {
	c := newPendingLog()
	for _, id := range l.entries {
		c.Record(id)
	}
	return c
}
