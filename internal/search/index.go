package search

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/unicode/norm"

	"github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/search/intern"
)

// ResultsLimit caps the number of matches a single query returns, per
// spec.md §4.4's Search RPC description.
const ResultsLimit = 200

// Index is the process-wide deduplicated, frecency-ranked search structure
// (spec.md §3/§4.5). commands grows monotonically during normal operation;
// the Search Component's rebuild replaces the whole Index with a fresh one.
// frecencySnapshot is swapped atomically by the daemon's periodic frecency
// task.
type Index struct {
	commands *xsync.MapOf[string, *CommandEntry]

	dirTable  *intern.Table
	hostTable *intern.Table

	// matcherMu guards the command list fed to the fuzzy matcher.
	// Injection appends under the write lock; a query takes the read lock
	// only to copy the slice header, then matches against that snapshot
	// outside the lock.
	matcherMu sync.RWMutex
	corpus    []string // every distinct command ever inserted, insertion order

	frecencySnapshot atomic.Pointer[map[string]uint32]
}

// New creates an empty Index.
func New() *Index {
	idx := &Index{
		commands:  xsync.NewMapOf[string, *CommandEntry](),
		dirTable:  intern.NewTable(),
		hostTable: intern.NewTable(),
	}
	empty := make(map[string]uint32)
	idx.frecencySnapshot.Store(&empty)
	return idx
}

// AddHistory folds one completed record into the index: spec.md §4.5.1's
// add path. A record whose id or session fails to parse is skipped
// silently — the index only admits records whose identities round-trip.
func (idx *Index) AddHistory(r history.Record) {
	if r.ID.IsZero() || r.Session == (history.SessionID{}) {
		return
	}

	if entry, ok := idx.commands.Load(r.Command); ok {
		entry.addInvocation(r, idx.dirTable, idx.hostTable)
		return
	}

	entry := newCommandEntry(r.Command)
	entry.addInvocation(r, idx.dirTable, idx.hostTable)

	actual, loaded := idx.commands.LoadOrStore(r.Command, entry)
	if loaded {
		// Lost the race to another inserter; fold into their entry instead.
		actual.addInvocation(r, idx.dirTable, idx.hostTable)
		return
	}

	idx.matcherMu.Lock()
	idx.corpus = append(idx.corpus, r.Command)
	idx.matcherMu.Unlock()
}

// AddHistories folds a batch of records in, for loader-task page ingestion.
func (idx *Index) AddHistories(records []history.Record) {
	for _, r := range records {
		idx.AddHistory(r)
	}
}

// CommandCount returns the number of distinct commands in the index.
func (idx *Index) CommandCount() int {
	return idx.commands.Size()
}

// RebuildFrecency recomputes and atomically installs a fresh frecency
// snapshot from the current commands map (spec.md §4.5.3), driven by the
// Search Component's 60s ticker.
func (idx *Index) RebuildFrecency(now int64) {
	snapshot := make(map[string]uint32, idx.commands.Size())
	idx.commands.Range(func(command string, entry *CommandEntry) bool {
		entry.mu.Lock()
		frecency := entry.GlobalFrecency
		entry.mu.Unlock()
		snapshot[command] = frecency.Compute(now)
		return true
	})
	idx.frecencySnapshot.Store(&snapshot)
}

// Search runs one query: builds the filter predicate, matches with smart
// case/normalisation, scores by fuzzy+frecency, and returns up to
// ResultsLimit history ids in descending score order (spec.md §4.4's
// query algorithm, §4.5.4).
func (idx *Index) Search(ctx context.Context, query string, mode FilterMode, qctx QueryContext, limit int) []history.ID {
	if limit <= 0 || limit > ResultsLimit {
		limit = ResultsLimit
	}

	snapshot := *idx.frecencySnapshot.Load()
	passes := idx.buildFilter(mode, qctx)

	idx.matcherMu.RLock()
	corpus := idx.corpus
	idx.matcherMu.RUnlock()

	normalize := needsNormalization(query)
	smartQuery := query
	if normalize {
		smartQuery = smartNormalize(query)
	}
	foldCase := isAllLower(query)
	if foldCase {
		smartQuery = strings.ToLower(smartQuery)
	}
	var matches fuzzy.Matches
	if smartQuery == "" {
		// fuzzy.FindFrom matches nothing for an empty pattern; an empty
		// query matches every command with a fuzzy score of 0.
		matches = make(fuzzy.Matches, len(corpus))
		for i, command := range corpus {
			matches[i] = fuzzy.Match{Str: command, Index: i}
		}
	} else {
		matches = fuzzy.FindFrom(smartQuery, corpusSource{
			commands:  corpus,
			normalize: normalize,
			foldCase:  foldCase,
		})
	}

	type scored struct {
		command string
		score   int
	}
	candidates := make([]scored, 0, len(matches))
	for _, m := range matches {
		command := corpus[m.Index]
		if passes != nil && !passes(command) {
			continue
		}
		candidates = append(candidates, scored{command: command, score: m.Score + int(snapshot[command])})
	}

	// Stable-ish descending sort by final score; ties keep fuzzy's
	// original relative order (insertion order within equal scores).
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]history.ID, 0, len(candidates))
	for _, c := range candidates {
		entry, ok := idx.commands.Load(c.command)
		if !ok {
			continue
		}
		if id, ok := entry.MostRecentID(); ok {
			out = append(out, id)
		}
	}
	return out
}

// buildFilter precomputes the pass/fail predicate for mode, per spec.md
// §4.5.2's table. A nil return means "always passes" (Global mode, or a
// non-Global mode whose required context field is absent).
func (idx *Index) buildFilter(mode FilterMode, qctx QueryContext) func(command string) bool {
	switch mode.Kind {
	case Directory:
		if mode.Directory == "" {
			return nil
		}
		handle, ok := idx.dirTable.Lookup(withTrailingSlash(mode.Directory))
		if !ok {
			return func(string) bool { return false }
		}
		return func(command string) bool {
			entry, ok := idx.commands.Load(command)
			return ok && entry.hasDirectory(handle)
		}
	case Workspace:
		if mode.Workspace == "" {
			return nil
		}
		prefix := withTrailingSlash(mode.Workspace)
		return func(command string) bool {
			entry, ok := idx.commands.Load(command)
			return ok && entry.hasDirectoryPrefix(prefix, idx.dirTable)
		}
	case Host:
		if mode.Host == "" {
			return nil
		}
		handle, ok := idx.hostTable.Lookup(mode.Host)
		if !ok {
			return func(string) bool { return false }
		}
		return func(command string) bool {
			entry, ok := idx.commands.Load(command)
			return ok && entry.hasHost(handle)
		}
	case Session, SessionPreload:
		if mode.Session == uuid.Nil {
			return nil
		}
		session := mode.Session
		return func(command string) bool {
			entry, ok := idx.commands.Load(command)
			return ok && entry.hasSession(session)
		}
	default:
		return nil
	}
}

// corpusSource adapts a []string to fuzzy.Source, optionally folding
// combining marks out of each candidate to match a normalized query (smart
// normalisation, spec.md §4.5.4).
type corpusSource struct {
	commands  []string
	normalize bool
	foldCase  bool
}

func (s corpusSource) String(i int) string {
	out := s.commands[i]
	if s.normalize {
		out = smartNormalize(out)
	}
	if s.foldCase {
		out = strings.ToLower(out)
	}
	return out
}

func (s corpusSource) Len() int { return len(s.commands) }

// needsNormalization reports whether normalisation applies: true when the
// query has no combining marks, false when it has one ("Smart
// normalisation: strip combining marks unless present in the query").
func needsNormalization(query string) bool {
	decomposed := norm.NFD.String(query)
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			return false
		}
	}
	return true
}

// smartNormalize strips combining marks via NFD decomposition, the
// normalisation side of spec.md §4.5.4's "Smart case and Smart
// normalisation".
func smartNormalize(s string) string {
	decomposed := norm.NFD.String(s)
	out := make([]rune, 0, len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// isAllLower reports whether s has no upper-case letters, the case side of
// "Smart case": case-insensitive unless the query itself carries a
// capital.
func isAllLower(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
