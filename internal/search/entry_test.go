package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrecencyComputeLadder pins down each rung of the bucket ladder from
// spec.md §4.5.3, using count 1 so the frequency term is 0.
func TestFrecencyComputeLadder(t *testing.T) {
	now := int64(1_700_000_000)

	tests := []struct {
		name     string
		age      int64 // seconds before now
		count    uint32
		wantMin  uint32
		wantMax  uint32
	}{
		{name: "just now", age: 0, count: 1, wantMin: 100, wantMax: 100},
		{name: "3 hours", age: 3 * 3600, count: 1, wantMin: 90, wantMax: 90},
		{name: "12 hours", age: 12 * 3600, count: 1, wantMin: 70, wantMax: 70},
		{name: "2 days", age: 48 * 3600, count: 1, wantMin: 50, wantMax: 50},
		{name: "5 days", age: 5 * 24 * 3600, count: 1, wantMin: 30, wantMax: 30},
		{name: "3 weeks", age: 20 * 24 * 3600, count: 1, wantMin: 15, wantMax: 15},
		{name: "a year", age: 365 * 24 * 3600, count: 1, wantMin: 5, wantMax: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FrecencyData{Count: tt.count, LastUsed: now - tt.age}
			got := f.Compute(now)
			assert.GreaterOrEqual(t, got, tt.wantMin)
			assert.LessOrEqual(t, got, tt.wantMax+100) // frequency term can add up to 100
		})
	}
}

// TestFrecencyZeroCount matches spec.md §4.5.3's "zero-count entries score
// 0" rule.
func TestFrecencyZeroCount(t *testing.T) {
	f := FrecencyData{}
	assert.Equal(t, uint32(0), f.Compute(1_700_000_000))
}

// TestFrecencyMonotonicCount is property 3 from spec.md §8: holding
// last_used fixed, compute(count) is non-decreasing in count.
func TestFrecencyMonotonicCount(t *testing.T) {
	now := int64(1_700_000_000)
	prev := uint32(0)
	for _, count := range []uint32{1, 2, 5, 10, 50, 100, 1000} {
		f := FrecencyData{Count: count, LastUsed: now}
		got := f.Compute(now)
		require.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

// TestFrecencyMonotonicRecency is property 3 from spec.md §8: holding
// count fixed, compute(last_used=t1) >= compute(last_used=t2) whenever
// t1 >= t2 (more recent use never scores lower).
func TestFrecencyMonotonicRecency(t *testing.T) {
	now := int64(1_700_000_000)
	ages := []int64{0, 3600, 12 * 3600, 2 * 24 * 3600, 10 * 24 * 3600, 365 * 24 * 3600}

	var prev uint32 = ^uint32(0)
	for _, age := range ages {
		f := FrecencyData{Count: 10, LastUsed: now - age}
		got := f.Compute(now)
		assert.LessOrEqual(t, got, prev, "older use should never outscore more recent use at age %d", age)
		prev = got
	}
}

// TestFrecencyFrequencyCap pins the "min(100, floor(20*ln(count)))" term:
// a huge count still caps the total contribution.
func TestFrecencyFrequencyCap(t *testing.T) {
	now := int64(1_700_000_000)
	f := FrecencyData{Count: 1_000_000_000, LastUsed: now}
	got := f.Compute(now)
	// recency(0) = 100, frequency capped at 100 => 200 total ceiling.
	assert.LessOrEqual(t, got, uint32(200))
}

func TestCommandEntryMostRecent(t *testing.T) {
	e := newCommandEntry("git status")

	rOld := recordAt(t, "git status", "/p", 10)
	rNew := recordAt(t, "git status", "/p", 20)

	e.addInvocation(rOld, newDirTable(), newHostTable())
	id, ok := e.MostRecentID()
	require.True(t, ok)
	assert.Equal(t, rOld.ID, id)

	e.addInvocation(rNew, newDirTable(), newHostTable())
	id, ok = e.MostRecentID()
	require.True(t, ok)
	assert.Equal(t, rNew.ID, id, "most recent invocation must win regardless of insertion order")
}

func TestCommandEntryOutOfOrderInsertion(t *testing.T) {
	e := newCommandEntry("ls")

	rNew := recordAt(t, "ls", "/p", 20)
	rOld := recordAt(t, "ls", "/p", 10)

	dirTable, hostTable := newDirTable(), newHostTable()
	e.addInvocation(rNew, dirTable, hostTable)
	e.addInvocation(rOld, dirTable, hostTable)

	id, ok := e.MostRecentID()
	require.True(t, ok)
	assert.Equal(t, rNew.ID, id, "inserting an older record after a newer one must not change most-recent")
	assert.Equal(t, 2, e.Count())
}
