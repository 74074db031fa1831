package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives LRU expiry without sleeping.
type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newTestLRU(capacity int, ttl time.Duration) (*LRU[string, int], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[string, int](capacity, ttl)
	c.nowFn = clock.Now
	return c, clock
}

// present lists which of keys are still readable, in the given order.
func present(c *LRU[string, int], keys ...string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := c.Get(k); ok {
			out = append(out, k)
		}
	}
	return out
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		run      func(c *LRU[string, int])
		want     []string
	}{
		{
			name:     "oldest insert goes first",
			capacity: 2,
			run: func(c *LRU[string, int]) {
				c.Put("0xa", 1)
				c.Put("0xb", 2)
				c.Put("0xc", 3)
			},
			want: []string{"0xb", "0xc"},
		},
		{
			name:     "read refreshes recency",
			capacity: 2,
			run: func(c *LRU[string, int]) {
				c.Put("0xa", 1)
				c.Put("0xb", 2)
				c.Get("0xa")
				c.Put("0xc", 3)
			},
			want: []string{"0xa", "0xc"},
		},
		{
			name:     "overwrite refreshes recency without growing",
			capacity: 2,
			run: func(c *LRU[string, int]) {
				c.Put("0xa", 1)
				c.Put("0xb", 2)
				c.Put("0xa", 10)
				c.Put("0xc", 3)
			},
			want: []string{"0xa", "0xc"},
		},
		{
			name:     "non-positive capacity holds one entry",
			capacity: -5,
			run: func(c *LRU[string, int]) {
				c.Put("0xa", 1)
				c.Put("0xb", 2)
			},
			want: []string{"0xb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestLRU(tt.capacity, 0)
			tt.run(c)
			assert.Equal(t, len(tt.want), c.Len())
			assert.Equal(t, tt.want, present(c, "0xa", "0xb", "0xc"))
		})
	}
}

func TestLRU_OverwriteReplacesValue(t *testing.T) {
	c, _ := newTestLRU(4, 0)
	c.Put("0xa", 1)
	c.Put("0xa", 7)

	v, ok := c.Get("0xa")
	require.True(t, ok)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		advance time.Duration
		want    bool
	}{
		{name: "fresh entry", ttl: time.Minute, advance: 30 * time.Second, want: true},
		{name: "exactly at deadline", ttl: time.Minute, advance: time.Minute, want: true},
		{name: "past deadline", ttl: time.Minute, advance: time.Minute + time.Nanosecond, want: false},
		{name: "zero ttl never expires", ttl: 0, advance: 1000 * time.Hour, want: true},
		{name: "negative ttl never expires", ttl: -time.Second, advance: time.Hour, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock := newTestLRU(4, tt.ttl)
			c.Put("0xa", 1)
			clock.Advance(tt.advance)

			_, ok := c.Get("0xa")
			assert.Equal(t, tt.want, ok)
			if !tt.want {
				assert.Zero(t, c.Len(), "expired entry is dropped on read")
			}
		})
	}
}

func TestLRU_PutRenewsDeadline(t *testing.T) {
	c, clock := newTestLRU(4, time.Minute)
	c.Put("0xa", 1)
	clock.Advance(50 * time.Second)
	c.Put("0xa", 2)
	clock.Advance(50 * time.Second)

	v, ok := c.Get("0xa")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLRU_DeleteAndPurge(t *testing.T) {
	c, _ := newTestLRU(8, 0)
	for i, k := range []string{"0xa", "0xb", "0xc"} {
		c.Put(k, i)
	}

	assert.True(t, c.Delete("0xb"))
	assert.False(t, c.Delete("0xb"), "second delete finds nothing")
	assert.Equal(t, []string{"0xa", "0xc"}, present(c, "0xa", "0xb", "0xc"))

	assert.Equal(t, 2, c.Purge())
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Purge())

	// Still usable after a purge.
	c.Put("0xd", 4)
	assert.Equal(t, []string{"0xd"}, present(c, "0xd"))
}

func TestLRU_Stats(t *testing.T) {
	c, clock := newTestLRU(2, time.Minute)
	c.Put("0xa", 1)

	c.Get("0xa")
	c.Get("0xb")
	// An expired read counts as a miss.
	clock.Advance(2 * time.Minute)
	c.Get("0xa")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}
