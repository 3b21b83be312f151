// Package control implements the Control Service (spec.md §4.7): the one
// RPC surface that lets an external process inject an event onto the bus.
// It is deliberately thin — translate and emit, nothing else — and it is
// the sole gate that keeps internal-only events from being forged by a
// client.
package control

import (
	"fmt"
	"log"

	"github.com/shellhist/histd/internal/daemon"
	"github.com/shellhist/histd/internal/eventbus"
	"github.com/shellhist/histd/internal/history"
)

// Service is the Control Service.
type Service struct {
	handle *daemon.Handle
}

func New(h *daemon.Handle) *Service {
	return &Service{handle: h}
}

// eventKinds maps the wire name of every externally-injectable event to a
// constructor. HistoryDeleted is handled separately since it carries ids.
var eventKinds = map[string]func() eventbus.Event{
	"HistoryPruned":    eventbus.NewHistoryPruned,
	"HistoryRebuilt":   eventbus.NewHistoryRebuilt,
	"ForceSync":        eventbus.NewForceSync,
	"SettingsReloaded": eventbus.NewSettingsReloaded,
	"Shutdown":         eventbus.NewShutdownRequested,
}

// SendEvent translates kind into an Event and emits it. An internal-only
// kind (spec.md §4.7's five: HistoryStarted, HistoryEnded, RecordsAdded,
// SyncCompleted, SyncFailed) is logged and dropped rather than emitted —
// the reference behaviour spec.md names explicitly. deletedIDs is only
// consulted for kind == "HistoryDeleted".
func (s *Service) SendEvent(kind string, deletedIDs []string) error {
	if t, ok := internalOnlyKind(kind); ok {
		log.Printf("control: rejecting internally-generated event kind %s (%s)", kind, t)
		return nil
	}

	if kind == "HistoryDeleted" {
		ids := make([]history.ID, 0, len(deletedIDs))
		for _, raw := range deletedIDs {
			id, err := history.ParseID(raw)
			if err != nil {
				return fmt.Errorf("control: parse deleted id %q: %w", raw, err)
			}
			ids = append(ids, id)
		}
		s.handle.Emit(eventbus.NewHistoryDeleted(ids))
		return nil
	}

	ctor, ok := eventKinds[kind]
	if !ok {
		return fmt.Errorf("control: unknown event kind %q", kind)
	}
	s.handle.Emit(ctor())
	return nil
}

// internalOnlyKind reports whether kind names one of the five events the
// Control Service must never let a client inject, matching it against
// eventbus.Type.IsInternalOnly by name rather than by value, since the
// wire carries names, not Type ints.
func internalOnlyKind(kind string) (eventbus.Type, bool) {
	for t := eventbus.HistoryStarted; t <= eventbus.ShutdownRequested; t++ {
		if t.String() == kind && t.IsInternalOnly() {
			return t, true
		}
	}
	return 0, false
}
