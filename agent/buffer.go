package agent

import (
	"sync"
	"time"

	"sync-relay/game"
)

const bufferCapacity = 5

// StateSample is one received remote state, stamped with local receipt time.
type StateSample struct {
	T         time.Time
	X, Y      float64
	Direction game.Direction
	Moving    bool
	Map       string
}

func sampleFromState(t time.Time, s game.PlayerState) StateSample {
	return StateSample{T: t, X: s.X, Y: s.Y, Direction: s.Direction, Moving: s.Moving, Map: s.Map}
}

// Rendered is the smoothed state of a remote player for the current frame.
type Rendered struct {
	X, Y      float64
	Direction game.Direction
	Moving    bool
	Map       string
}

// StateBuffer turns irregular samples of one remote player into continuous
// motion. It renders renderDelay in the past, interpolating between the
// samples around that instant, and extrapolates from the last velocity only
// when it holds no samples at all.
type StateBuffer struct {
	mu sync.Mutex

	samples [bufferCapacity]StateSample
	head    int
	count   int

	velX, velY  float64
	hasVelocity bool
	rendered    Rendered

	renderDelay      time.Duration
	extrapolationCap time.Duration
	now              func() time.Time
}

func NewStateBuffer(renderDelay, extrapolationCap time.Duration) *StateBuffer {
	return &StateBuffer{
		renderDelay:      renderDelay,
		extrapolationCap: extrapolationCap,
		rendered:         Rendered{Direction: game.DirDown},
		now:              time.Now,
	}
}

func (b *StateBuffer) at(i int) *StateSample {
	return &b.samples[(b.head+i)%bufferCapacity]
}

func (b *StateBuffer) dropOldest() {
	b.head = (b.head + 1) % bufferCapacity
	b.count--
}

// Push appends a sample in arrival order, evicting the oldest when full.
func (b *StateBuffer) Push(s StateSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count > 0 {
		prev := b.at(b.count - 1)
		if dt := s.T.Sub(prev.T).Seconds(); dt > 0 {
			b.velX = (s.X - prev.X) / dt
			b.velY = (s.Y - prev.Y) / dt
			b.hasVelocity = true
		}
	}

	if b.count == bufferCapacity {
		b.dropOldest()
	}
	*b.at(b.count) = s
	b.count++
	b.rendered.Map = s.Map
}

// Advance computes the state to draw this frame; dt is the frame time and
// only bounds extrapolation.
func (b *StateBuffer) Advance(dt time.Duration) Rendered {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := b.now().Add(-b.renderDelay)

	var prev, next *StateSample
	for i := 0; i < b.count; i++ {
		s := b.at(i)
		if !s.T.After(target) {
			prev = s
			continue
		}
		next = s
		break
	}

	switch {
	case prev != nil && next != nil && next.T.After(prev.T):
		alpha := float64(target.Sub(prev.T)) / float64(next.T.Sub(prev.T))
		alpha = max(0, min(1, alpha))
		b.rendered.X = lerp(prev.X, next.X, alpha)
		b.rendered.Y = lerp(prev.Y, next.Y, alpha)
		b.rendered.Direction = next.Direction
		b.rendered.Moving = next.Moving
	case prev != nil:
		b.rendered.X, b.rendered.Y = prev.X, prev.Y
		b.rendered.Direction = prev.Direction
		b.rendered.Moving = prev.Moving
	case next != nil:
		b.rendered.X, b.rendered.Y = next.X, next.Y
		b.rendered.Direction = next.Direction
		b.rendered.Moving = next.Moving
	case b.hasVelocity:
		step := min(dt, b.extrapolationCap).Seconds()
		if step > 0 {
			b.rendered.X += b.velX * step
			b.rendered.Y += b.velY * step
		}
	}

	// Keep the newest sample at or before target plus everything after it,
	// and never fewer than two.
	for b.count > 2 && b.at(1).T.Before(target) {
		b.dropOldest()
	}

	return b.rendered
}

func (b *StateBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Velocity returns the last estimated velocity in units per second.
func (b *StateBuffer) Velocity() (x, y float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.velX, b.velY, b.hasVelocity
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
