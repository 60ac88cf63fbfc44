package ai

import (
	"testing"
	"time"
)

func TestGateSingleFlight(t *testing.T) {
	g := NewGate()
	if !g.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	if g.TryAcquire() {
		t.Fatal("second acquire should fail while held")
	}
	g.Release()
	if !g.TryAcquire() {
		t.Fatal("acquire after release should succeed")
	}
	g.Release()
}

func TestGateAcquireTimeout(t *testing.T) {
	g := NewGate()
	if !g.AcquireTimeout(10 * time.Millisecond) {
		t.Fatal("acquire on free gate should succeed immediately")
	}

	start := time.Now()
	if g.AcquireTimeout(20 * time.Millisecond) {
		t.Fatal("acquire on held gate should time out")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("timed-out acquire returned early")
	}
	g.Release()
}

func TestGateAcquireWaitsForRelease(t *testing.T) {
	g := NewGate()
	g.TryAcquire()

	done := make(chan bool)
	go func() {
		done <- g.AcquireTimeout(time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	g.Release()

	select {
	case ok := <-done:
		if !ok {
			t.Error("waiter should acquire once released")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never woke up")
	}
}

func TestGateUnbalancedRelease(t *testing.T) {
	g := NewGate()
	// Release on a free gate must not wedge or panic.
	g.Release()
	g.Release()
	if !g.TryAcquire() {
		t.Fatal("gate unusable after unbalanced release")
	}
}
