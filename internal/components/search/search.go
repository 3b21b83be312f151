// Package search implements the Search Component (spec.md §4.4): it owns
// the process-wide search.Index, loads it from the history store at boot,
// keeps it current as History/Sync events arrive, and periodically
// recomputes the frecency snapshot every component's queries read.
package search

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/shellhist/histd/internal/daemon"
	"github.com/shellhist/histd/internal/eventbus"
	"github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/search"
)

// pageSize matches spec.md §4.4 point 1's paging size for the initial and
// rebuild loads.
const pageSize = 5000

// frecencyRefreshInterval is how often the frecency snapshot is
// recomputed, per spec.md §4.5.3.
const frecencyRefreshInterval = 60 * time.Second

// Component is the Search Component.
type Component struct {
	index  atomic.Pointer[search.Index]
	handle *daemon.Handle

	stop chan struct{}
	done chan struct{}
}

// New creates a Search Component with an empty index; Start kicks off the
// initial load.
func New() *Component {
	c := &Component{stop: make(chan struct{}), done: make(chan struct{})}
	c.index.Store(search.New())
	return c
}

func (c *Component) Name() string { return "search" }

func (c *Component) Start(ctx context.Context, h *daemon.Handle) error {
	c.handle = h

	go c.loadAndRefresh(ctx)

	return nil
}

// loadAndRefresh runs the initial history load and then the periodic
// frecency ticker, in one goroutine so Stop only has one thing to wait on
// — the teacher's daemon components each own a single background
// lifecycle rather than a pool of independent tasks.
func (c *Component) loadAndRefresh(ctx context.Context) {
	defer close(c.done)

	c.loadAll(ctx)
	c.index.Load().RebuildFrecency(time.Now().Unix())

	ticker := time.NewTicker(frecencyRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.index.Load().RebuildFrecency(time.Now().Unix())
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// loadAll pages through the history store and folds every record into the
// current index (spec.md §4.4 point 1).
func (c *Component) loadAll(ctx context.Context) {
	idx := c.index.Load()
	pager := c.handle.HistoryStore().AllPaged(ctx, pageSize)
	for {
		records, err := pager.Next(ctx)
		if err != nil {
			log.Printf("search: load history page: %v", err)
			return
		}
		if len(records) == 0 {
			break
		}
		idx.AddHistories(records)
	}
	log.Printf("search: initial load complete; %d unique commands indexed", idx.CommandCount())
}

// rebuild discards the current index and replaces it with a freshly loaded
// one, per spec.md §4.4 point 3's "HistoryPruned/HistoryRebuilt/
// HistoryDeleted all trigger a full rebuild" behaviour — the simplest
// correct response, same as the original source's own handler.
func (c *Component) rebuild(ctx context.Context) {
	fresh := search.New()
	pager := c.handle.HistoryStore().AllPaged(ctx, pageSize)
	for {
		records, err := pager.Next(ctx)
		if err != nil {
			log.Printf("search: rebuild: load history page: %v", err)
			return
		}
		if len(records) == 0 {
			break
		}
		fresh.AddHistories(records)
	}
	fresh.RebuildFrecency(time.Now().Unix())
	c.index.Store(fresh)
	log.Printf("search: rebuild complete; %d unique commands indexed", fresh.CommandCount())
}

func (c *Component) HandleEvent(ev eventbus.Event) error {
	ctx := context.Background()

	switch ev.Type {
	case eventbus.HistoryEnded:
		c.index.Load().AddHistory(ev.Record)

	case eventbus.RecordsAdded:
		if len(ev.RecordIDs) == 0 {
			return nil
		}
		ids := make([]history.ID, len(ev.RecordIDs))
		for i, rid := range ev.RecordIDs {
			ids[i] = history.ID(rid)
		}
		records, err := c.handle.HistoryStore().QueryByIDs(ctx, ids)
		if err != nil {
			log.Printf("search: query records added: %v", err)
			return nil
		}
		c.index.Load().AddHistories(records)

	case eventbus.HistoryPruned, eventbus.HistoryRebuilt, eventbus.HistoryDeleted:
		c.rebuild(ctx)
	}

	return nil
}

func (c *Component) Stop(context.Context) error {
	close(c.stop)
	<-c.done
	return nil
}

// Search answers the Search RPC (spec.md §4.4), delegating straight to the
// current index snapshot.
func (c *Component) Search(ctx context.Context, query string, mode search.FilterMode, qctx search.QueryContext, limit int) []history.ID {
	return c.index.Load().Search(ctx, query, mode, qctx, limit)
}
