package search_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	searchcomp "github.com/shellhist/histd/internal/components/search"
	"github.com/shellhist/histd/internal/daemon"
	"github.com/shellhist/histd/internal/eventbus"
	histcore "github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/recordlog"
	"github.com/shellhist/histd/internal/search"
	"github.com/shellhist/histd/internal/settings"
)

// fakeStore serves a fixed slice of records through AllPaged (one page)
// and QueryByIDs, and lets tests swap its contents to simulate the store
// changing between a HistoryPruned event and the rebuild it triggers.
type fakeStore struct {
	mu      sync.Mutex
	records []histcore.Record
}

func (f *fakeStore) set(records []histcore.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func (f *fakeStore) snapshot() []histcore.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]histcore.Record, len(f.records))
	copy(out, f.records)
	return out
}

func (f *fakeStore) Save(context.Context, histcore.Record) error { return nil }

func (f *fakeStore) QueryByIDs(_ context.Context, ids []histcore.ID) ([]histcore.Record, error) {
	want := make(map[histcore.ID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []histcore.Record
	for _, r := range f.snapshot() {
		if _, ok := want[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) AllPaged(context.Context, int) histcore.Pager {
	return &onceAllPager{records: f.snapshot()}
}

type onceAllPager struct {
	records []histcore.Record
	done    bool
}

func (p *onceAllPager) Next(context.Context) ([]histcore.Record, error) {
	if p.done {
		return nil, nil
	}
	p.done = true
	return p.records, nil
}

type noopLog struct{}

func (noopLog) Append(context.Context, recordlog.Envelope) (uint64, error)  { return 0, nil }
func (noopLog) IncrementalBuild(context.Context, []recordlog.RecordID) error { return nil }
func (noopLog) Sync(context.Context) (int, []recordlog.RecordID, error)     { return 0, nil, nil }

func newTestHandle(t *testing.T, store *fakeStore) *daemon.Handle {
	t.Helper()
	s := settings.Default(t.TempDir())
	d, err := daemon.NewBuilder(s).
		HistoryStore(store).
		RecordLog(noopLog{}).
		Build(filepath.Join(s.Daemon.StateDir, "histd.sock"), "test")
	require.NoError(t, err)
	t.Cleanup(func() { d.StopComponents(context.Background()) })
	return d.Handle()
}

func rec(command, cwd string, ts int64) histcore.Record {
	return histcore.Record{
		ID:        histcore.NewID(),
		Command:   command,
		CWD:       cwd,
		Hostname:  "host-a",
		Session:   histcore.NewSessionID(),
		Timestamp: ts,
	}
}

func searchGlobal(t *testing.T, c *searchcomp.Component, query string) []histcore.ID {
	t.Helper()
	return c.Search(context.Background(), query, search.FilterMode{Kind: search.Global}, search.QueryContext{}, 0)
}

// TestInitialLoad verifies the Search Component pages through the store at
// startup (spec.md §4.4 point 1) and that queries see the loaded rows.
func TestInitialLoad(t *testing.T) {
	store := &fakeStore{}
	seeded := rec("git status", "/p", 10)
	store.set([]histcore.Record{seeded})

	handle := newTestHandle(t, store)
	c := searchcomp.New()
	require.NoError(t, c.Start(context.Background(), handle))
	t.Cleanup(func() { c.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		return len(searchGlobal(t, c, "")) == 1
	}, time.Second, 5*time.Millisecond, "initial load must index the seeded record")
}

// TestHistoryEndedInsertsDirectly covers spec.md §4.4 point 2's
// HistoryEnded -> insert-directly path.
func TestHistoryEndedInsertsDirectly(t *testing.T) {
	store := &fakeStore{}
	handle := newTestHandle(t, store)

	c := searchcomp.New()
	require.NoError(t, c.Start(context.Background(), handle))
	t.Cleanup(func() { c.Stop(context.Background()) })

	require.Eventually(t, func() bool { return len(searchGlobal(t, c, "")) == 0 }, time.Second, 5*time.Millisecond)

	r := rec("echo hi", "/tmp", 20)
	require.NoError(t, c.HandleEvent(eventbus.NewHistoryEnded(r)))

	ids := searchGlobal(t, c, "")
	require.Len(t, ids, 1)
	assert.Equal(t, r.ID, ids[0])
}

// TestRecordsAddedLooksUpStore is spec.md §4.4 point 2's "canonical
// sync-to-search path": RecordsAdded looks the ids up in the store rather
// than carrying the records itself.
func TestRecordsAddedLooksUpStore(t *testing.T) {
	store := &fakeStore{}
	handle := newTestHandle(t, store)

	c := searchcomp.New()
	require.NoError(t, c.Start(context.Background(), handle))
	t.Cleanup(func() { c.Stop(context.Background()) })

	require.Eventually(t, func() bool { return len(searchGlobal(t, c, "")) == 0 }, time.Second, 5*time.Millisecond)

	r := rec("synced command", "/p", 30)
	store.set([]histcore.Record{r})

	require.NoError(t, c.HandleEvent(eventbus.NewRecordsAdded([]recordlog.RecordID{recordlog.RecordID(r.ID)})))

	require.Eventually(t, func() bool {
		ids := searchGlobal(t, c, "")
		return len(ids) == 1 && ids[0] == r.ID
	}, time.Second, 5*time.Millisecond)
}

// TestRebuildOnPrune is scenario S6: HistoryPruned must trigger a full
// rebuild from the store, replacing in-memory data rather than patching it.
func TestRebuildOnPrune(t *testing.T) {
	store := &fakeStore{}
	r1 := rec("first", "/p", 10)
	r2 := rec("second", "/p", 20)
	store.set([]histcore.Record{r1, r2})

	handle := newTestHandle(t, store)
	c := searchcomp.New()
	require.NoError(t, c.Start(context.Background(), handle))
	t.Cleanup(func() { c.Stop(context.Background()) })

	require.Eventually(t, func() bool { return len(searchGlobal(t, c, "")) == 2 }, time.Second, 5*time.Millisecond)

	// Simulate a prune: the store now only has one surviving record.
	store.set([]histcore.Record{r2})
	require.NoError(t, c.HandleEvent(eventbus.Event{Type: eventbus.HistoryPruned}))

	require.Eventually(t, func() bool {
		ids := searchGlobal(t, c, "")
		return len(ids) == 1 && ids[0] == r2.ID
	}, time.Second, 5*time.Millisecond, "a fresh query after HistoryPruned must reflect the store, not the stale in-memory index")
}

// TestHistoryDeletedAlsoRebuilds: spec.md §4.4 point 2 treats
// HistoryDeleted the same as HistoryPruned/HistoryRebuilt for now.
func TestHistoryDeletedAlsoRebuilds(t *testing.T) {
	store := &fakeStore{}
	r1 := rec("keep", "/p", 10)
	store.set([]histcore.Record{r1})

	handle := newTestHandle(t, store)
	c := searchcomp.New()
	require.NoError(t, c.Start(context.Background(), handle))
	t.Cleanup(func() { c.Stop(context.Background()) })

	require.Eventually(t, func() bool { return len(searchGlobal(t, c, "")) == 1 }, time.Second, 5*time.Millisecond)

	store.set(nil)
	require.NoError(t, c.HandleEvent(eventbus.NewHistoryDeleted([]histcore.ID{histcore.ID(uuid.New())})))

	require.Eventually(t, func() bool { return len(searchGlobal(t, c, "")) == 0 }, time.Second, 5*time.Millisecond)
}
