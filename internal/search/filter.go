package search

import "github.com/google/uuid"

// FilterModeKind discriminates the filter predicate a query installs before
// matching, per spec.md §4.5.2's table.
type FilterModeKind int

const (
	Global FilterModeKind = iota
	Directory
	Workspace
	Host
	Session
	SessionPreload
)

// FilterMode pairs a kind with the single string/uuid argument it needs.
// SessionPreload is treated identically to Session — the original Rust
// source leaves this choice as an open question of its own, and spec.md's
// own Open Questions section directs implementations not to invent a
// distinction where none is specified.
type FilterMode struct {
	Kind      FilterModeKind
	Directory string
	Workspace string
	Host      string
	Session   uuid.UUID
}

// QueryContext carries the caller's ambient information. Index.Search does
// not read it: filter values come from FilterMode's fields, and a
// non-Global mode whose field is empty passes every command.
type QueryContext struct {
	CWD       string
	GitRoot   string
	Hostname  string
	SessionID uuid.UUID
}
