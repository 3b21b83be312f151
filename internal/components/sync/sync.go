// Package sync implements the Sync Component (spec.md §4.6): a background
// loop that periodically drains the record log against its configured
// remote, rebuilds any newly-downloaded records into the history store,
// and backs off exponentially on failure.
package sync

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shellhist/histd/internal/daemon"
	"github.com/shellhist/histd/internal/eventbus"
)

type command int

const (
	cmdForceSync command = iota
	cmdStop
)

// maxBackoffJitter matches the original source's "don't back off by more
// than 30 minutes, with up to a minute of jitter" cap.
const maxBackoffJitter = 60 * time.Second

// Component is the Sync Component.
type Component struct {
	handle *daemon.Handle
	cmdCh  chan command
	done   chan struct{}
}

func New() *Component {
	return &Component{cmdCh: make(chan command, 16)}
}

func (c *Component) Name() string { return "sync" }

func (c *Component) Start(ctx context.Context, h *daemon.Handle) error {
	c.handle = h
	c.done = make(chan struct{})
	go c.loop(ctx)
	return nil
}

func (c *Component) HandleEvent(ev eventbus.Event) error {
	if ev.Type == eventbus.ForceSync {
		select {
		case c.cmdCh <- cmdForceSync:
		default:
			// A force-sync is already queued; dropping a duplicate is
			// harmless, the pending one will run.
		}
	}
	return nil
}

func (c *Component) Stop(context.Context) error {
	select {
	case c.cmdCh <- cmdStop:
	default:
	}
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		log.Printf("sync: loop did not stop within 5s")
	}
	return nil
}

// loop is the main sync loop: it ticks on the configured frequency, on
// ForceSync requests, and backs off exponentially whenever a sync tick
// fails (spec.md §4.6 points 2-4).
func (c *Component) loop(ctx context.Context) {
	defer close(c.done)

	freq := time.Duration(c.handle.Settings().Daemon.SyncFrequency) * time.Second
	if freq <= 0 {
		freq = 600 * time.Second
	}
	maxInterval := 30*time.Minute + time.Duration(rand.Int63n(int64(maxBackoffJitter)))

	// The first failure waits freq times a random factor in [2.0, 2.2];
	// each further failure multiplies the interval by about 2.1 again, up
	// to maxInterval.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(float64(freq) * 2.1)
	bo.MaxInterval = maxInterval
	bo.Multiplier = 2.1
	bo.RandomizationFactor = 0.1 / 2.1
	bo.MaxElapsedTime = 0 // never give up, just keep backing off
	bo.Reset()            // start from InitialInterval, not the constructor's default

	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick(ctx, bo, ticker, freq)

		case cmd := <-c.cmdCh:
			switch cmd {
			case cmdForceSync:
				log.Printf("sync: force sync requested")
				c.tick(ctx, bo, ticker, freq)
			case cmdStop:
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// tick runs one sync: pull+push via the record log, fold downloaded
// records into history, and emit the events other components react to.
func (c *Component) tick(ctx context.Context, bo *backoff.ExponentialBackOff, ticker *time.Ticker, baseFreq time.Duration) {
	if !c.handle.Settings().Sync.LoggedIn {
		return
	}

	uploaded, downloaded, err := c.handle.RecordLog().Sync(ctx)
	if err != nil {
		log.Printf("sync: tick failed: %v", err)
		c.handle.Emit(eventbus.NewSyncFailed(err))

		next := bo.NextBackOff()
		ticker.Reset(next)
		log.Printf("sync: backing off, next tick in %s", next)
		return
	}

	if len(downloaded) > 0 {
		if err := c.handle.RecordLog().IncrementalBuild(ctx, downloaded); err != nil {
			log.Printf("sync: incremental build: %v", err)
		}
		c.handle.Emit(eventbus.NewRecordsAdded(downloaded))
	}

	c.handle.Emit(eventbus.NewSyncCompleted(uploaded, len(downloaded)))

	bo.Reset()
	ticker.Reset(baseFreq)
}
