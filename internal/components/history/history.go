// Package history implements the History Component (spec.md §4.3): it
// tracks commands that have started but not yet ended, persists finished
// ones to the history store and the record log, and emits the
// HistoryStarted/HistoryEnded events every other component reacts to.
package history

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/shellhist/histd/internal/daemon"
	"github.com/shellhist/histd/internal/eventbus"
	"github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/recordlog"
)

// Component is the History Component. It produces events but doesn't need
// to react to any (spec.md §4.3's handle_event is a no-op), mirroring the
// original source's own history component.
type Component struct {
	version string

	running *xsync.MapOf[history.ID, history.Record]
	handle  *daemon.Handle
}

// New creates a History Component. version is echoed back in every RPC
// reply that carries one (spec.md §4.3/§6).
func New(version string) *Component {
	return &Component{
		version: version,
		running: xsync.NewMapOf[history.ID, history.Record](),
	}
}

func (c *Component) Name() string { return "history" }

func (c *Component) Start(_ context.Context, h *daemon.Handle) error {
	c.handle = h
	return nil
}

func (c *Component) HandleEvent(eventbus.Event) error { return nil }

func (c *Component) Stop(context.Context) error { return nil }

// StartArgs is the caller-supplied half of StartHistory: everything known
// at command-start time (spec.md §4.3 point 1).
type StartArgs struct {
	Command     string
	CWD         string
	Hostname    string
	Session     history.SessionID
	GitRoot     string
	TimestampNS int64 // 0 means "use time.Now()"
}

// StartResult is what RPC's OpStartHistory echoes back.
type StartResult struct {
	ID              history.ID
	ProtocolVersion int
	Version         string
}

// StartHistory records a newly-started command in memory and emits
// HistoryStarted. Nothing is persisted yet — persistence happens on
// EndHistory, per spec.md §4.3's in-flight/finished split.
func (c *Component) StartHistory(args StartArgs) StartResult {
	ts := args.TimestampNS
	if ts == 0 {
		ts = time.Now().UnixNano()
	}

	rec := history.Record{
		ID:        history.NewID(),
		Command:   args.Command,
		CWD:       args.CWD,
		Hostname:  args.Hostname,
		Session:   args.Session,
		Timestamp: ts,
		GitRoot:   args.GitRoot,
	}

	c.running.Store(rec.ID, rec)
	c.handle.Emit(eventbus.NewHistoryStarted(rec))

	return StartResult{ID: rec.ID, ProtocolVersion: protocolVersion, Version: c.version}
}

// protocolVersion matches rpc.ProtocolVersion; duplicated as a constant
// here so this package has no import-cycle-inducing dependency on rpc.
const protocolVersion = 1

// EndArgs is the caller-supplied half of EndHistory (spec.md §4.3 point 2).
type EndArgs struct {
	ID         history.ID
	DurationNS int64 // 0 means "compute from Timestamp to time.Now()"
	Exit       int32
}

// EndResult is what RPC's OpEndHistory echoes back.
type EndResult struct {
	RecordID        recordlog.RecordID
	Index           uint64
	ProtocolVersion int
	Version         string
}

// ErrNotRunning is returned by EndHistory when ID has no matching
// in-flight record — it was never started here, or EndHistory was already
// called for it.
var ErrNotRunning = fmt.Errorf("history: no in-flight record with that id")

// EndHistory completes a started command: fills in Duration/Exit, saves it
// to the history store, appends it to the record log, and emits
// HistoryEnded (spec.md §4.3 point 2, in that order — the store write
// happens before the event so readers never observe HistoryEnded for a row
// that isn't queryable yet).
func (c *Component) EndHistory(ctx context.Context, args EndArgs) (EndResult, error) {
	rec, ok := c.running.LoadAndDelete(args.ID)
	if !ok {
		return EndResult{}, ErrNotRunning
	}

	rec.Exit = args.Exit
	if args.DurationNS != 0 {
		rec.Duration = args.DurationNS
	} else {
		rec.Duration = time.Now().UnixNano() - rec.Timestamp
	}

	if err := c.handle.HistoryStore().Save(ctx, rec); err != nil {
		return EndResult{}, fmt.Errorf("history: save record: %w", err)
	}

	content, err := recordlog.EncodeHistoryRecord(rec)
	if err != nil {
		return EndResult{}, fmt.Errorf("history: encode record: %w", err)
	}
	// The envelope shares its identity with the history record it carries,
	// rather than minting an unrelated id — the same conflation the
	// original source's own RecordsAdded handler relies on when it queries
	// the history table directly by record id.
	recordID := recordlog.RecordID(rec.ID)
	idx, err := c.handle.RecordLog().Append(ctx, recordlog.Envelope{ID: recordID, Content: content})
	if err != nil {
		return EndResult{}, fmt.Errorf("history: append record log: %w", err)
	}

	c.handle.Emit(eventbus.NewHistoryEnded(rec))

	return EndResult{RecordID: recordID, Index: idx, ProtocolVersion: protocolVersion, Version: c.version}, nil
}

// Status answers the OpStatus RPC (spec.md §4.3 point 3).
func (c *Component) Status() (healthy bool, version string, pid int, protocol int) {
	return true, c.version, os.Getpid(), protocolVersion
}
