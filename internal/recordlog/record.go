// Package recordlog implements the replicated log of opaque, host-tagged
// records that history rows are derived from. This supplements spec.md's
// distillation with the shape the original Rust source's atuin-client::record
// crate carried but the spec left out: a per-host append log of envelopes
// keyed by random ids, which the History Component appends to and the Sync
// Component replicates.
//
// Cross-host encryption of record content is out of scope here (a Non-goal);
// Content is treated as opaque bytes on both the local and replicated
// backends.
package recordlog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecordID identifies one envelope in the log.
type RecordID uuid.UUID

func NewRecordID() RecordID { return RecordID(uuid.New()) }

func ParseRecordID(s string) (RecordID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RecordID{}, fmt.Errorf("recordlog: parse record id %q: %w", s, err)
	}
	return RecordID(u), nil
}

func (id RecordID) String() string { return uuid.UUID(id).String() }

// HostID identifies the machine that produced a record, so downstream
// replication can distinguish local-origin records from synced-in ones.
type HostID uuid.UUID

func NewHostID() HostID { return HostID(uuid.New()) }

func ParseHostID(s string) (HostID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return HostID{}, fmt.Errorf("recordlog: parse host id %q: %w", s, err)
	}
	return HostID(u), nil
}

func (id HostID) String() string { return uuid.UUID(id).String() }

// Envelope is one append-only entry. Content is an opaque, serialized
// HistoryRecord (or, in principle, any other record kind the log carries);
// this package never interprets it.
type Envelope struct {
	ID      RecordID
	Host    HostID
	Index   uint64 // per-host monotonic sequence number
	Content []byte
}

// Log is the append-only, syncable record store a host keeps locally.
// IncrementalBuild and Sync are the two operations the Sync Component
// drives (spec.md §4.6); Append is how the History Component's EndHistory
// handler feeds new records in before emitting HistoryEnded.
type Log interface {
	// Append adds a new envelope for the local host, returning its assigned
	// index. Append stamps Host with the local host and Index with the next
	// sequence number, and mints a fresh ID when env.ID is zero.
	Append(ctx context.Context, env Envelope) (idx uint64, err error)

	// IncrementalBuild folds newly-downloaded envelopes into the history
	// store, deriving history.Record values from their Content. This must
	// complete before RecordsAdded is emitted for those ids — the search
	// index's ingest path assumes the row is already queryable by the time
	// it sees the id (spec.md §4.6 point 4's ordering requirement).
	IncrementalBuild(ctx context.Context, ids []RecordID) error

	// Sync reconciles the local log against the configured remote, returning
	// the number of envelopes uploaded and the ids of envelopes downloaded.
	// A Sync implementation that has no remote configured (no backend wired)
	// returns (0, nil, nil): a no-op sync, not an error.
	Sync(ctx context.Context) (uploaded int, downloaded []RecordID, err error)
}
