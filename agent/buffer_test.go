package agent

import (
	"testing"
	"time"

	"sync-relay/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Set(t time.Time)         { c.t = t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

const renderDelay = 100 * time.Millisecond

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestBuffer() (*StateBuffer, *fakeClock) {
	clock := &fakeClock{t: epoch}
	b := NewStateBuffer(renderDelay, 300*time.Millisecond)
	b.now = clock.Now
	return b, clock
}

func sample(offset time.Duration, x, y float64, dir game.Direction, moving bool) StateSample {
	return StateSample{T: epoch.Add(offset), X: x, Y: y, Direction: dir, Moving: moving, Map: "town"}
}

// renderAt positions the clock so that the render target equals epoch+target.
func renderAt(b *StateBuffer, clock *fakeClock, target time.Duration) Rendered {
	clock.Set(epoch.Add(target + renderDelay))
	return b.Advance(16 * time.Millisecond)
}

func TestInterpolatesBetweenSamples(t *testing.T) {
	cases := []struct {
		name   string
		target time.Duration
		x, y   float64
	}{
		{"quarter", 25 * time.Millisecond, 2.5, 105},
		{"half", 50 * time.Millisecond, 5, 110},
		{"three quarters", 75 * time.Millisecond, 7.5, 115},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, clock := newTestBuffer()
			b.Push(sample(0, 0, 100, game.DirLeft, false))
			b.Push(sample(100*time.Millisecond, 10, 120, game.DirRight, true))

			r := renderAt(b, clock, tc.target)
			assert.InDelta(t, tc.x, r.X, 1e-9)
			assert.InDelta(t, tc.y, r.Y, 1e-9)
			assert.Equal(t, game.DirRight, r.Direction, "discrete attributes snap to the next sample")
			assert.True(t, r.Moving)
			assert.Equal(t, "town", r.Map)
		})
	}
}

func TestInterpolationEndpointsDoNotOvershoot(t *testing.T) {
	b, clock := newTestBuffer()
	b.Push(sample(0, 0, 0, game.DirDown, true))
	b.Push(sample(100*time.Millisecond, 10, 20, game.DirDown, false))

	r := renderAt(b, clock, 0)
	assert.Equal(t, 0.0, r.X)
	assert.Equal(t, 0.0, r.Y)

	r = renderAt(b, clock, 100*time.Millisecond)
	assert.Equal(t, 10.0, r.X)
	assert.Equal(t, 20.0, r.Y)
	assert.False(t, r.Moving)

	r = renderAt(b, clock, time.Second)
	assert.Equal(t, 10.0, r.X, "beyond the last sample the player holds still")
	assert.Equal(t, 20.0, r.Y)
}

func TestOnlyPrevRendersLatestSample(t *testing.T) {
	b, clock := newTestBuffer()
	b.Push(sample(0, 1, 1, game.DirUp, true))
	b.Push(sample(50*time.Millisecond, 4, 5, game.DirLeft, true))

	r := renderAt(b, clock, 80*time.Millisecond)
	assert.Equal(t, Rendered{X: 4, Y: 5, Direction: game.DirLeft, Moving: true, Map: "town"}, r)
}

func TestOnlyNextRendersEarliestFutureSample(t *testing.T) {
	b, clock := newTestBuffer()
	b.Push(sample(200*time.Millisecond, 7, 8, game.DirUp, true))

	r := renderAt(b, clock, 0)
	assert.Equal(t, Rendered{X: 7, Y: 8, Direction: game.DirUp, Moving: true, Map: "town"}, r)
}

func TestOutOfOrderSamplesFallBackToPrev(t *testing.T) {
	b, clock := newTestBuffer()
	b.Push(sample(100*time.Millisecond, 10, 0, game.DirRight, true))
	b.Push(sample(50*time.Millisecond, 5, 0, game.DirRight, true))

	// target 120ms: both samples are at or before it; the last one in
	// arrival order wins.
	r := renderAt(b, clock, 120*time.Millisecond)
	assert.Equal(t, 5.0, r.X)
}

func TestExtrapolatesWhenEmpty(t *testing.T) {
	b, _ := newTestBuffer()
	b.rendered = Rendered{X: 10, Y: 10, Direction: game.DirRight}
	b.velX, b.velY, b.hasVelocity = 100, -50, true

	r := b.Advance(100 * time.Millisecond)
	assert.InDelta(t, 20, r.X, 1e-9)
	assert.InDelta(t, 5, r.Y, 1e-9)

	// dt is capped
	r = b.Advance(5 * time.Second)
	assert.InDelta(t, 50, r.X, 1e-9)
	assert.InDelta(t, -10, r.Y, 1e-9)
}

func TestHoldsPositionWhenEmptyWithoutVelocity(t *testing.T) {
	b, _ := newTestBuffer()

	r := b.Advance(time.Second)
	assert.Equal(t, Rendered{Direction: game.DirDown}, r)
}

func TestPushEstimatesVelocity(t *testing.T) {
	b, _ := newTestBuffer()

	_, _, ok := b.Velocity()
	assert.False(t, ok)

	b.Push(sample(0, 0, 0, game.DirDown, true))
	b.Push(sample(500*time.Millisecond, 10, -5, game.DirDown, true))
	vx, vy, ok := b.Velocity()
	require.True(t, ok)
	assert.InDelta(t, 20, vx, 1e-9)
	assert.InDelta(t, -10, vy, 1e-9)

	// non-positive time delta keeps the previous estimate
	b.Push(sample(500*time.Millisecond, 99, 99, game.DirDown, true))
	vx, vy, _ = b.Velocity()
	assert.InDelta(t, 20, vx, 1e-9)
	assert.InDelta(t, -10, vy, 1e-9)
}

func TestCapacityEvictsOldest(t *testing.T) {
	b, clock := newTestBuffer()
	for i := 0; i < 8; i++ {
		b.Push(sample(time.Duration(i)*time.Second, float64(i), 0, game.DirDown, false))
	}
	assert.Equal(t, bufferCapacity, b.Len())

	// the oldest retained sample is #3; render before it
	r := renderAt(b, clock, 0)
	assert.Equal(t, 3.0, r.X)
}

func TestAdvancePrunesButKeepsTwo(t *testing.T) {
	b, clock := newTestBuffer()
	for i := 0; i < 5; i++ {
		b.Push(sample(time.Duration(i)*100*time.Millisecond, float64(i), 0, game.DirDown, true))
	}

	renderAt(b, clock, 250*time.Millisecond)
	// samples at 0 and 100ms are no longer needed; 200ms stays as prev
	assert.Equal(t, 3, b.Len())

	renderAt(b, clock, 10*time.Second)
	assert.Equal(t, 2, b.Len())
}
