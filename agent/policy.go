package agent

import "time"

// pollPolicy is the two-state poll timer: active while remote players move,
// idle after threshold consecutive cycles without movement.
type pollPolicy struct {
	active     time.Duration
	idle       time.Duration
	threshold  int
	idleCycles int
}

func (p *pollPolicy) Next() time.Duration {
	if p.idleCycles < p.threshold {
		return p.active
	}
	return p.idle
}

// Observe records the outcome of one cycle. A failed cycle counts as idle.
func (p *pollPolicy) Observe(moving bool) {
	if moving {
		p.idleCycles = 0
		return
	}
	if p.idleCycles < p.threshold {
		p.idleCycles++
	}
}

func (p *pollPolicy) Idle() bool {
	return p.idleCycles >= p.threshold
}
