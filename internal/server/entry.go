package server

import "time"

// Entry is the stored representation of a keyed document.
//
// Entry is what the standalone binary keeps in its reactive store. It is
// optimized for JSON serialization (used by the REST API and SSE). The Key
// identifies the document; Data is an opaque payload.
type Entry struct {
	// ID identifies the write that produced this revision of the entry.
	// Assigned by the server on every store operation.
	ID string `json:"id"`

	// Key is the entry's identity. One key maps to at most one entry.
	Key string `json:"key"`

	// Data is the document payload.
	Data map[string]any `json:"data,omitempty"`

	// UpdatedAt is the timestamp of the write that produced this revision.
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryKey extracts an entry's key. It is the KeyFunc used by the
// standalone binary's store and cache.
func EntryKey(e Entry) string {
	return e.Key
}
