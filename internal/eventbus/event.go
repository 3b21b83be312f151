// Package eventbus implements the daemon's single broadcast channel:
// components subscribe once at startup and see every event emitted after
// that, in emission order, with no cross-subscriber ordering guarantee
// beyond that. A slow subscriber never blocks the emitter — it falls
// behind and is told how many events it missed.
package eventbus

import (
	"github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/recordlog"
)

// Type tags the variant of an Event so components can discriminate cheaply
// without a type switch. Every exported event kind spec.md names appears
// here.
type Type int

const (
	HistoryStarted Type = iota
	HistoryEnded
	RecordsAdded
	SyncCompleted
	SyncFailed
	ForceSync
	HistoryPruned
	HistoryRebuilt
	HistoryDeleted
	SettingsReloaded
	ShutdownRequested
)

func (t Type) String() string {
	switch t {
	case HistoryStarted:
		return "HistoryStarted"
	case HistoryEnded:
		return "HistoryEnded"
	case RecordsAdded:
		return "RecordsAdded"
	case SyncCompleted:
		return "SyncCompleted"
	case SyncFailed:
		return "SyncFailed"
	case ForceSync:
		return "ForceSync"
	case HistoryPruned:
		return "HistoryPruned"
	case HistoryRebuilt:
		return "HistoryRebuilt"
	case HistoryDeleted:
		return "HistoryDeleted"
	case SettingsReloaded:
		return "SettingsReloaded"
	case ShutdownRequested:
		return "ShutdownRequested"
	default:
		return "Unknown"
	}
}

// Event is the tagged union described in spec.md §3. Only the fields
// relevant to Type are populated; the rest are zero values.
type Event struct {
	Type Type

	// HistoryStarted / HistoryEnded
	Record history.Record

	// RecordsAdded
	RecordIDs []recordlog.RecordID

	// SyncCompleted
	Uploaded   int
	Downloaded int

	// SyncFailed
	Err error

	// HistoryDeleted
	DeletedIDs []history.ID
}

// IsInternalOnly reports whether this event kind must never be injected by
// an external caller via the Control service (spec.md §4.7).
func (t Type) IsInternalOnly() bool {
	switch t {
	case HistoryStarted, HistoryEnded, RecordsAdded, SyncCompleted, SyncFailed:
		return true
	default:
		return false
	}
}

// NewHistoryStarted builds a HistoryStarted event.
func NewHistoryStarted(r history.Record) Event { return Event{Type: HistoryStarted, Record: r} }

// NewHistoryEnded builds a HistoryEnded event.
func NewHistoryEnded(r history.Record) Event { return Event{Type: HistoryEnded, Record: r} }

// NewRecordsAdded builds a RecordsAdded event.
func NewRecordsAdded(ids []recordlog.RecordID) Event {
	return Event{Type: RecordsAdded, RecordIDs: ids}
}

// NewSyncCompleted builds a SyncCompleted event.
func NewSyncCompleted(uploaded, downloaded int) Event {
	return Event{Type: SyncCompleted, Uploaded: uploaded, Downloaded: downloaded}
}

// NewSyncFailed builds a SyncFailed event.
func NewSyncFailed(err error) Event { return Event{Type: SyncFailed, Err: err} }

// NewHistoryDeleted builds a HistoryDeleted event.
func NewHistoryDeleted(ids []history.ID) Event {
	return Event{Type: HistoryDeleted, DeletedIDs: ids}
}

// simple constructors for the zero-payload events, kept as funcs (rather
// than package vars) so every call site reads the same regardless of
// payload shape.
func NewForceSync() Event         { return Event{Type: ForceSync} }
func NewHistoryPruned() Event     { return Event{Type: HistoryPruned} }
func NewHistoryRebuilt() Event    { return Event{Type: HistoryRebuilt} }
func NewSettingsReloaded() Event  { return Event{Type: SettingsReloaded} }
func NewShutdownRequested() Event { return Event{Type: ShutdownRequested} }
