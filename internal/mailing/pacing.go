package mailing

import (
	"math/rand"
	"sync"
	"time"
)

// PacingPolicy computes the wait between consecutive recipients. With
// Randomize set, each delay is drawn uniformly from base plus or minus
// thirty percent, which keeps the send rate from looking machine-regular.
type PacingPolicy struct {
	BaseDelay time.Duration
	Randomize bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPacingPolicy builds a policy from campaign settings.
func NewPacingPolicy(base time.Duration, randomize bool) *PacingPolicy {
	return &PacingPolicy{
		BaseDelay: base,
		Randomize: randomize,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DelayFor returns the pause to apply before the next recipient. Never
// negative.
func (p *PacingPolicy) DelayFor() time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if !p.Randomize {
		return p.BaseDelay
	}

	p.mu.Lock()
	f := p.rng.Float64()
	p.mu.Unlock()

	// Spread across [0.7, 1.3] of the base delay.
	d := time.Duration(float64(p.BaseDelay) * (0.7 + 0.6*f))
	if d < 0 {
		return 0
	}
	return d
}
