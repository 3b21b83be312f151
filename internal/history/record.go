// Package history defines the shell-command lifecycle record (spec.md §3)
// and the HistoryStore interface the core invokes on the persistent,
// plaintext store. The store's own implementation lives in this package
// too (a thin modernc.org/sqlite-backed adapter) but the core only ever
// depends on the interface.
package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ID is a HistoryRecord's 128-bit identifier, unique per invocation.
type ID uuid.UUID

// NewID generates a fresh random ID.
func NewID() ID { return ID(uuid.New()) }

// ParseID parses a string form. A malformed string is a distinct error,
// never silently coerced to the zero ID — the index's ingest path (spec.md
// §4.5.1) depends on being able to tell malformed ids apart from ID{}.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("history: parse id %q: %w", s, err)
	}
	return ID(u), nil
}

func (id ID) String() string  { return uuid.UUID(id).String() }
func (id ID) Bytes() [16]byte { return uuid.UUID(id) }
func (id ID) IsZero() bool    { return id == ID{} }

// SessionID is the 128-bit identifier of a shell session.
type SessionID uuid.UUID

func NewSessionID() SessionID { return SessionID(uuid.New()) }

func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, fmt.Errorf("history: parse session id %q: %w", s, err)
	}
	return SessionID(u), nil
}

func (s SessionID) String() string { return uuid.UUID(s).String() }

// Record is one shell-command invocation (spec.md §3).
//
// Invariants: Timestamp is assigned at start; Duration and Exit are set
// exactly once, on end; an ID never appears under two different Sessions;
// in-flight records live only in the History Component's memory, never in
// the store.
type Record struct {
	ID        ID
	Command   string
	CWD       string
	Hostname  string
	Session   SessionID
	Timestamp int64 // nanoseconds since Unix epoch
	Duration  int64 // nanoseconds; 0 while in flight
	Exit      int32
	GitRoot   string // optional; empty if not in a repository
}

// Store is the persistent, queryable, plaintext database of finalised
// history rows. Spec.md §1 calls this an interface, not part of the core;
// the core only ever depends on this shape.
type Store interface {
	// Save persists a completed record. Called from EndHistory, and from
	// the record log's IncrementalBuild for records downloaded by sync.
	Save(ctx context.Context, r Record) error

	// QueryByIDs fetches records by id, for the Search Component's
	// RecordsAdded handling (spec.md §4.4 point 2, the "canonical
	// sync-to-search path").
	QueryByIDs(ctx context.Context, ids []ID) ([]Record, error)

	// AllPaged returns a Pager that yields pages of records oldest-first
	// (spec.md §4.4 point 1: "page size 5000, oldest-first to preserve
	// most_recent_id semantics").
	AllPaged(ctx context.Context, pageSize int) Pager
}

// Pager yields successive pages of records. Next returns (nil, nil) once
// exhausted.
type Pager interface {
	Next(ctx context.Context) ([]Record, error)
}
