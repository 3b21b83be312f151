package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeSeesOnlyFutureEvents(t *testing.T) {
	bus := New()

	// Emitted before any subscriber exists: spec.md §4.1's "fails only if
	// there are no subscribers" — just logged, never delivered.
	bus.Emit(NewForceSync())

	recv := bus.Subscribe()
	bus.Emit(NewHistoryPruned())

	ev, lagged, ok := recv.Receive()
	require.True(t, ok)
	assert.Equal(t, uint64(0), lagged)
	assert.Equal(t, HistoryPruned, ev.Type)
}

func TestDeliveryOrderPerSubscriber(t *testing.T) {
	bus := New()
	recv := bus.Subscribe()

	bus.Emit(NewHistoryPruned())
	bus.Emit(NewHistoryRebuilt())
	bus.Emit(NewForceSync())

	var got []Type
	for i := 0; i < 3; i++ {
		ev, _, ok := recv.Receive()
		require.True(t, ok)
		got = append(got, ev.Type)
	}
	assert.Equal(t, []Type{HistoryPruned, HistoryRebuilt, ForceSync}, got)
}

func TestIndependentSubscribers(t *testing.T) {
	bus := New()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Emit(NewHistoryPruned())

	evA, _, ok := a.Receive()
	require.True(t, ok)
	evB, _, ok := b.Receive()
	require.True(t, ok)

	assert.Equal(t, HistoryPruned, evA.Type)
	assert.Equal(t, HistoryPruned, evB.Type)
}

// TestLaggedSubscriberReportsDrops matches spec.md §4.1/§9: a subscriber
// that falls behind the bounded buffer observes a lagged count rather than
// blocking the emitter.
func TestLaggedSubscriberReportsDrops(t *testing.T) {
	bus := New()
	recv := bus.Subscribe()

	for i := 0; i < subscriberBacklog+5; i++ {
		bus.Emit(NewHistoryPruned())
	}

	_, lagged, ok := recv.Receive()
	require.True(t, ok)
	assert.Equal(t, uint64(5), lagged, "5 events beyond the backlog capacity must be reported as lagged")
}

func TestUnsubscribeClosesReceiver(t *testing.T) {
	bus := New()
	recv := bus.Subscribe()
	recv.Unsubscribe()

	_, _, ok := recv.Receive()
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestCloseClosesAllReceivers(t *testing.T) {
	bus := New()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Close()

	_, _, okA := a.Receive()
	_, _, okB := b.Receive()
	assert.False(t, okA)
	assert.False(t, okB)
}

// TestEmitDoesNotBlock is the non-blocking-publish contract: Emit must
// return promptly even when a subscriber's channel is saturated.
func TestEmitDoesNotBlock(t *testing.T) {
	bus := New()
	bus.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBacklog*3; i++ {
			bus.Emit(NewHistoryPruned())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a saturated subscriber")
	}
}

func TestIsInternalOnly(t *testing.T) {
	internal := []Type{HistoryStarted, HistoryEnded, RecordsAdded, SyncCompleted, SyncFailed}
	for _, ty := range internal {
		assert.True(t, ty.IsInternalOnly(), "%s must be internal-only", ty)
	}

	external := []Type{ForceSync, HistoryPruned, HistoryRebuilt, HistoryDeleted, SettingsReloaded, ShutdownRequested}
	for _, ty := range external {
		assert.False(t, ty.IsInternalOnly(), "%s must be externally injectable", ty)
	}
}
