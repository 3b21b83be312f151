// Package daemon provides the orchestrator spec.md §4.2 describes: a small
// event bus feeding a fixed set of pluggable components, each owning its
// own long-lived state and background tasks. Everything else in the core
// (History, Search, Sync, Control) is a Component implementation or an RPC
// shim driving one.
package daemon

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/shellhist/histd/internal/daemonrunner"
	"github.com/shellhist/histd/internal/eventbus"
	"github.com/shellhist/histd/internal/history"
	"github.com/shellhist/histd/internal/recordlog"
	"github.com/shellhist/histd/internal/settings"
)

// Component is one pluggable subsystem: History, Search, or Sync (spec.md
// §4.3/§4.4/§4.6). Start is called once per component at boot, in
// registration order; Stop once at shutdown, in reverse order.
type Component interface {
	Name() string
	Start(ctx context.Context, h *Handle) error
	HandleEvent(ev eventbus.Event) error
	Stop(ctx context.Context) error
}

// Handle is the lightweight, shareable view of daemon state every
// component and RPC shim gets: emit events, read settings, reach the
// stores. It is shared by pointer; its settings lock is never held across
// calls.
type Handle struct {
	bus *eventbus.Bus

	mu       sync.RWMutex
	settings settings.Settings

	historyStore history.Store
	recordLog    recordlog.Log
}

// Emit broadcasts ev to every subscribed component (spec.md §4.1).
func (h *Handle) Emit(ev eventbus.Event) { h.bus.Emit(ev) }

// Subscribe registers a new receiver on the bus. The Daemon subscribes once
// in StartComponents and hands each event to components via HandleEvent.
func (h *Handle) Subscribe() *eventbus.Receiver { return h.bus.Subscribe() }

// Settings returns a snapshot of the current settings.
func (h *Handle) Settings() settings.Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

// ReplaceSettings installs new settings, taken on SettingsReloaded.
func (h *Handle) ReplaceSettings(s settings.Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = s
}

// HistoryStore returns the persistent history database.
func (h *Handle) HistoryStore() history.Store { return h.historyStore }

// RecordLog returns the replicated record log.
func (h *Handle) RecordLog() recordlog.Log { return h.recordLog }

// Daemon is the orchestrator: it owns the bus, the components, and the
// single-instance lock file.
type Daemon struct {
	handle     *Handle
	components []Component
	lock       *daemonrunner.Lock

	recv       *eventbus.Receiver
	shutdownCh chan struct{}
}

// Builder assembles a Daemon; see cmd/histd's serve command for the
// standard wiring.
type Builder struct {
	settings     settings.Settings
	historyStore history.Store
	recordLog    recordlog.Log
	components   []Component
}

func NewBuilder(s settings.Settings) *Builder {
	return &Builder{settings: s}
}

func (b *Builder) HistoryStore(store history.Store) *Builder {
	b.historyStore = store
	return b
}

func (b *Builder) RecordLog(log recordlog.Log) *Builder {
	b.recordLog = log
	return b
}

func (b *Builder) Component(c Component) *Builder {
	b.components = append(b.components, c)
	return b
}

// Build constructs the Daemon, acquiring the single-instance lock file
// (spec.md's Daemon Core module, grounded on daemonrunner.Acquire).
func (b *Builder) Build(socketPath, version string) (*Daemon, error) {
	if b.historyStore == nil {
		return nil, fmt.Errorf("daemon: history store is required")
	}

	lock, err := daemonrunner.Acquire(b.settings.Daemon.StateDir, socketPath, version)
	if err != nil {
		return nil, fmt.Errorf("daemon: acquire lock: %w", err)
	}

	h := &Handle{
		bus:          eventbus.New(),
		settings:     b.settings,
		historyStore: b.historyStore,
		recordLog:    b.recordLog,
	}

	return &Daemon{
		handle:     h,
		components: b.components,
		lock:       lock,
		shutdownCh: make(chan struct{}),
	}, nil
}

// Handle returns the daemon's shared handle, for wiring into the Control
// service and the RPC server.
func (d *Daemon) Handle() *Handle { return d.handle }

// StartComponents starts every registered component, in registration
// order. If one fails, every component started so far is stopped in
// reverse order before the error is returned (spec.md §4.2's "On any
// failure, tear down already-started components in reverse order and
// abort").
func (d *Daemon) StartComponents(ctx context.Context) error {
	d.recv = d.handle.Subscribe()

	started := make([]Component, 0, len(d.components))
	for _, c := range d.components {
		if err := c.Start(ctx, d.handle); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if stopErr := started[i].Stop(ctx); stopErr != nil {
					log.Printf("daemon: component %s stop error during teardown: %v", started[i].Name(), stopErr)
				}
			}
			return fmt.Errorf("daemon: start component %s: %w", c.Name(), err)
		}
		started = append(started, c)
		log.Printf("daemon: component %s started", c.Name())
	}

	return nil
}

// RunEventLoop is the daemon's single dispatch loop: every event is
// broadcast to all components in registration order before the next event
// is read, matching spec.md §5's "handle_event is invoked sequentially per
// event" ordering guarantee. It returns once ShutdownRequested has been
// observed and every component has seen it.
func (d *Daemon) RunEventLoop() {
	for {
		ev, lagged, ok := d.recv.Receive()
		if !ok {
			return
		}
		if lagged > 0 {
			log.Printf("daemon: event loop lagged by %d events, forcing rebuild", lagged)
			d.handle.Emit(eventbus.NewHistoryRebuilt())
		}

		for _, c := range d.components {
			if err := c.HandleEvent(ev); err != nil {
				log.Printf("daemon: component %s failed handling %s: %v", c.Name(), ev.Type, err)
			}
		}

		if ev.Type == eventbus.ShutdownRequested {
			close(d.shutdownCh)
			return
		}
	}
}

// Done returns a channel closed once ShutdownRequested has been observed
// and the event loop has returned.
func (d *Daemon) Done() <-chan struct{} { return d.shutdownCh }

// StopComponents stops every component in reverse registration order, then
// releases the single-instance lock.
func (d *Daemon) StopComponents(ctx context.Context) {
	for i := len(d.components) - 1; i >= 0; i-- {
		c := d.components[i]
		if err := c.Stop(ctx); err != nil {
			log.Printf("daemon: component %s stop error: %v", c.Name(), err)
		}
	}
	if d.recv != nil {
		d.recv.Unsubscribe()
	}
	d.handle.bus.Close()
	if err := d.lock.Close(); err != nil {
		log.Printf("daemon: release lock: %v", err)
	}
}
