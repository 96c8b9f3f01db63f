package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives a rateLimiter without sleeping.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiterSlidingWindow(t *testing.T) {
	clock := newFakeClock()
	r := newRateLimiter(3, time.Minute)
	r.now = clock.Now

	require.False(t, r.Limited())
	for range 3 {
		r.Record()
	}
	require.True(t, r.Limited())
	assert.Equal(t, time.Minute, r.Wait())

	// Mid-window the limiter still refuses, with a shorter wait.
	clock.Advance(30 * time.Second)
	require.True(t, r.Limited())
	assert.Equal(t, 30*time.Second, r.Wait())

	// Once the oldest request ages out the window opens again.
	clock.Advance(31 * time.Second)
	require.False(t, r.Limited())
	assert.Equal(t, time.Duration(0), r.Wait())

	// One more request refills the window with the two younger stamps.
	r.Record()
	require.True(t, r.Limited())
}

func TestRateLimiterRollsForward(t *testing.T) {
	clock := newFakeClock()
	r := newRateLimiter(2, time.Minute)
	r.now = clock.Now

	r.Record()
	clock.Advance(45 * time.Second)
	r.Record()
	require.True(t, r.Limited())

	// The first stamp leaves the window 15s later; the second keeps the
	// limiter half full.
	clock.Advance(16 * time.Second)
	require.False(t, r.Limited())

	r.Record()
	require.True(t, r.Limited())
}

func TestRateLimiterDisabled(t *testing.T) {
	for _, max := range []int{0, -1} {
		r := newRateLimiter(max, time.Minute)
		for range 100 {
			r.Record()
		}
		assert.False(t, r.Limited())
		assert.Equal(t, time.Duration(0), r.Wait())
	}
}
