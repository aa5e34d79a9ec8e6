// Package watcher turns raw filesystem notifications into debounced,
// exclusion-filtered change events ready for analysis.
package watcher

import "time"

// EventKind identifies what happened to a path.
type EventKind int

const (
	Created EventKind = iota
	Modified
	Deleted
	Moved
)

// String returns a human-readable kind name.
func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// FileChangeEvent is one normalized filesystem change. Path is always
// absolute. OldPath is set only for Moved events and names the source
// of the move.
type FileChangeEvent struct {
	Path    string
	OldPath string
	Kind    EventKind
	Time    time.Time
}
