package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("key", "value", 0)

	v, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestGetMissingKey(t *testing.T) {
	c := New(10, time.Minute)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestGetExpiredEntry(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("key", "value", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	// touch "a" so "b" becomes least recently used
	c.Get("a")
	c.Set("c", 3, 0)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("key", "value", 0)
	c.Invalidate("key")

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestInvalidateServerRemovesMatchingKeys(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("prompt:fs.greeting:map[]", "a", 0)
	c.Set("resource:fs:res://hello", "b", 0)
	c.Set("prompt:db.greeting:map[]", "c", 0)

	c.InvalidateServer("fs")

	_, ok := c.Get("prompt:fs.greeting:map[]")
	assert.False(t, ok)
	_, ok = c.Get("resource:fs:res://hello")
	assert.False(t, ok)
	_, ok = c.Get("prompt:db.greeting:map[]")
	assert.True(t, ok)
}

func TestClearRemovesEverything(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestStatsReportsConfiguration(t *testing.T) {
	c := New(5, time.Minute)
	c.Set("a", 1, 0)
	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 5, stats.MaxSize)
	assert.Equal(t, time.Minute, stats.DefaultTTL)
}

func TestRemoveExpiredPurgesExpiredEntries(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("key", "value", 5*time.Millisecond)

	// directly exercise the sweep path rather than waiting a full
	// sweepInterval tick.
	time.Sleep(10 * time.Millisecond)
	c.removeExpired()

	assert.Equal(t, 0, c.Size())
}

func TestStopIsIdempotent(t *testing.T) {
	c := New(10, time.Minute)
	c.StartSweeper()
	c.Stop()
	assert.NotPanics(t, func() { c.Stop() })
}
