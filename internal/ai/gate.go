package ai

import "time"

// Gate is the single-flight permit in front of the text generator: at most
// one generation call is in flight at any moment. Trigger sources pick an
// acquisition policy — interactive triggers try once and surface "busy",
// the startup welcome waits with a bound, decorative feedback gives up
// silently. Release must run on every exit path.
type Gate struct {
	permit chan struct{}
}

// NewGate returns a free gate.
func NewGate() *Gate {
	return &Gate{permit: make(chan struct{}, 1)}
}

// TryAcquire takes the permit without blocking. Returns false when a call
// is already in flight.
func (g *Gate) TryAcquire() bool {
	select {
	case g.permit <- struct{}{}:
		return true
	default:
		return false
	}
}

// AcquireTimeout waits up to d for the permit.
func (g *Gate) AcquireTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case g.permit <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// Release frees the permit. Must be paired with a successful acquire,
// usually via defer.
func (g *Gate) Release() {
	select {
	case <-g.permit:
	default:
		// Unbalanced release; the gate is already free.
	}
}
