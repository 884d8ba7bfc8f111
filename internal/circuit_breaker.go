package internal

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// sequenceBreaker trips per sequence: a missing or broken sequence stops being called for a while
// without blocking key generation for the other entity types.
type sequenceBreaker struct {
	mu           sync.Mutex
	threshold    int
	window       time.Duration
	openDuration time.Duration
	now          func() time.Time
	circuits     map[string]*circuit
}

type circuit struct {
	failures  []time.Time
	openUntil time.Time
}

func newSequenceBreaker(threshold int, window, openDuration time.Duration) *sequenceBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &sequenceBreaker{
		threshold:    threshold,
		window:       window,
		openDuration: openDuration,
		now:          time.Now,
		circuits:     make(map[string]*circuit),
	}
}

// allow reports whether sequence may be called, and if not, how long until it may.
func (b *sequenceBreaker) allow(sequence string) (bool, time.Duration) {
	if b == nil {
		return true, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[sequence]
	if !ok {
		return true, 0
	}
	if wait := c.openUntil.Sub(b.now()); wait > 0 {
		return false, wait
	}
	return true, 0
}

// failure counts a failed call; threshold failures inside the window open the circuit.
func (b *sequenceBreaker) failure(sequence string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	c, ok := b.circuits[sequence]
	if !ok {
		c = &circuit{}
		b.circuits[sequence] = c
	}
	cutoff := now.Add(-b.window)
	kept := c.failures[:0]
	for _, at := range c.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	c.failures = append(kept, now)

	if len(c.failures) >= b.threshold {
		c.openUntil = now.Add(b.openDuration)
		c.failures = c.failures[:0]
		zap.S().Warnw("key generation circuit opened", "sequence", sequence, "openUntil", c.openUntil)
	}
}

// success closes the circuit of sequence.
func (b *sequenceBreaker) success(sequence string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.circuits, sequence)
}
