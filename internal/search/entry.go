// Package search implements the deduplicated, frecency-ranked, fuzzy
// searchable in-memory index described by spec.md §3–4.5: one CommandEntry
// per distinct command string, fed by a concurrent map, queried through
// sahilm/fuzzy with a frecency-adjusted scorer.
package search

import (
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/search/intern"
)

// FrecencyData is the precomputed usage summary a CommandEntry carries for
// O(1) scoring: how often a command ran, and when it last did.
type FrecencyData struct {
	Count    uint32
	LastUsed int64 // unix seconds
}

// RecordUse folds one more invocation into the summary.
func (f *FrecencyData) RecordUse(timestamp int64) {
	f.Count++
	if timestamp > f.LastUsed {
		f.LastUsed = timestamp
	}
}

// Compute implements the age/frequency ladder from spec.md §4.5.3. Zero-count
// entries score 0, matching the original's own definition (never reached in
// practice, since a CommandEntry always has at least one invocation).
func (f FrecencyData) Compute(now int64) uint32 {
	if f.Count == 0 {
		return 0
	}

	ageSeconds := now - f.LastUsed
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	ageHours := ageSeconds / 3600

	var recency uint32
	switch {
	case ageHours == 0:
		recency = 100
	case ageHours <= 6:
		recency = 90
	case ageHours <= 24:
		recency = 70
	case ageHours <= 72:
		recency = 50
	case ageHours <= 168:
		recency = 30
	case ageHours <= 720:
		recency = 15
	default:
		recency = 5
	}

	frequency := uint32(math.Log(math.Max(float64(f.Count), 1)) * 20.0)
	if frequency > 100 {
		frequency = 100
	}

	return recency + frequency
}

// invocation is one run of a command, kept newest-first.
type invocation struct {
	timestamp int64
	historyID history.ID
}

// CommandEntry is the deduplicated unit inside the index: one per distinct
// command text, across every invocation of it ever seen.
type CommandEntry struct {
	mu sync.Mutex

	Command string

	invocations []invocation // newest first

	GlobalFrecency FrecencyData

	directories *xsync.MapOf[uint32, struct{}]
	hosts       *xsync.MapOf[uint32, struct{}]
	sessions    map[uuid.UUID]struct{}
}

func newCommandEntry(command string) *CommandEntry {
	return &CommandEntry{
		Command:     command,
		directories: xsync.NewMapOf[uint32, struct{}](),
		hosts:       xsync.NewMapOf[uint32, struct{}](),
		sessions:    make(map[uuid.UUID]struct{}),
	}
}

// addInvocation records one run of this command, keeping the pack of
// interned dir/host handles and raw session ids current, and re-sorting the
// invocation list so MostRecentID stays O(1).
func (e *CommandEntry) addInvocation(r history.Record, dirTable, hostTable *intern.Table) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.GlobalFrecency.RecordUse(r.Timestamp / int64(1e9))

	e.directories.Store(dirTable.Intern(withTrailingSlash(r.CWD)), struct{}{})
	e.hosts.Store(hostTable.Intern(r.Hostname), struct{}{})
	e.sessions[uuid.UUID(r.Session)] = struct{}{}

	inv := invocation{timestamp: r.Timestamp, historyID: r.ID}
	pos := len(e.invocations)
	for i, existing := range e.invocations {
		if existing.timestamp < inv.timestamp {
			pos = i
			break
		}
	}
	e.invocations = append(e.invocations, invocation{})
	copy(e.invocations[pos+1:], e.invocations[pos:])
	e.invocations[pos] = inv
}

// MostRecentID returns the history id of the newest invocation, the id a
// search match resolves to.
func (e *CommandEntry) MostRecentID() (history.ID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.invocations) == 0 {
		return history.ID{}, false
	}
	return e.invocations[0].historyID, true
}

// Count returns the number of invocations folded into this entry, for tests
// and diagnostics.
func (e *CommandEntry) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.invocations)
}

func (e *CommandEntry) hasDirectory(handle uint32) bool {
	_, ok := e.directories.Load(handle)
	return ok
}

func (e *CommandEntry) hasDirectoryPrefix(prefix string, dirTable *intern.Table) bool {
	found := false
	e.directories.Range(func(handle uint32, _ struct{}) bool {
		if hasPrefix(dirTable.Value(handle), prefix) {
			found = true
			return false
		}
		return true
	})
	return found
}

func (e *CommandEntry) hasHost(handle uint32) bool {
	_, ok := e.hosts.Load(handle)
	return ok
}

func (e *CommandEntry) hasSession(session uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[session]
	return ok
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// withTrailingSlash normalises a directory for exact/prefix comparison, per
// spec.md §4.5.2's "trailing path separator appended to both sides".
func withTrailingSlash(dir string) string {
	if dir == "" || dir[len(dir)-1] == '/' {
		return dir
	}
	return dir + "/"
}
