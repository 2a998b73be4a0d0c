package recorder

import (
	"sync"
	"time"
)

// circuitBreaker stops persistence attempts while the audit store is
// failing. After threshold consecutive failures it opens for cooldown. Once
// the cooldown has passed, exactly one trial attempt is let through; its
// result closes or reopens the circuit, and other attempts are refused
// until it reports.
type circuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	clock     func() time.Time

	failures  int
	openUntil time.Time
	isOpen    bool
	trialOut  bool
}

func newCircuitBreaker(threshold int, cooldown time.Duration, clock func() time.Time) *circuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &circuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     clock,
	}
}

// allow reports whether a persistence attempt may proceed. Every true
// result must be followed by recordSuccess or recordFailure.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.isOpen {
		return true
	}
	if cb.trialOut || cb.clock().Before(cb.openUntil) {
		return false
	}
	cb.trialOut = true
	return true
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
	cb.trialOut = false
}

// recordFailure returns true when this failure opened the circuit. A failed
// trial reopens it for another cooldown.
func (cb *circuitBreaker) recordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.trialOut {
		cb.trialOut = false
		cb.openUntil = cb.clock().Add(cb.cooldown)
		return true
	}
	cb.failures++
	if cb.failures >= cb.threshold && !cb.isOpen {
		cb.isOpen = true
		cb.openUntil = cb.clock().Add(cb.cooldown)
		return true
	}
	return false
}

func (cb *circuitBreaker) open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.isOpen
}
