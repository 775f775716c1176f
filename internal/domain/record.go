package domain

import "time"

// Record is one identity row of a table.
//
// Only the key, usage count and last-used columns are interpreted; every column,
// including those three, is kept in Fields exactly as read.
type Record struct {
	// Key is the value of the table's key column (e.g., an email address).
	Key string

	// UsageCount is how many real submissions this identity has backed.
	UsageCount int

	// LastUsed is when the identity was last selected; zero if never.
	LastUsed time.Time

	// Fields holds every column of the row as read, keyed by header name.
	Fields map[string]string

	// Malformed is set when the usage count or the last-used timestamp could not be parsed.
	Malformed error

	dirty bool
}

// MarkUsed records a selection at now. The usage count grows by exactly one when countUse is set.
func (r *Record) MarkUsed(now time.Time, countUse bool) {
	if countUse {
		r.UsageCount++
	}
	r.LastUsed = now
	r.dirty = true
}

// Dirty reports whether MarkUsed was called since the record was read.
func (r *Record) Dirty() bool {
	return r.dirty
}

// Field returns the raw value of a column, or "" if the row does not carry it.
func (r *Record) Field(name string) string {
	return r.Fields[name]
}

// NeverUsed reports whether the record has no last-used timestamp.
func (r *Record) NeverUsed() bool {
	return r.LastUsed.IsZero()
}
