package schedule

import (
	"context"
	"time"
)

// Loop drives the tick callback at a fixed cadence. All scheduling
// decisions happen inside the callback on this single goroutine; fired
// reminders must hand their slow work off elsewhere so a tick never blocks.
type Loop struct {
	interval time.Duration
	onTick   func(now time.Time)
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewLoop creates a tick loop. interval defaults to one second.
func NewLoop(interval time.Duration, onTick func(now time.Time)) *Loop {
	if interval <= 0 {
		interval = time.Second
	}
	return &Loop{
		interval: interval,
		onTick:   onTick,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins ticking in a background goroutine.
func (l *Loop) Start(ctx context.Context) {
	if l.running {
		return
	}
	l.running = true
	go l.run(ctx)
}

// Stop halts the loop and waits for the goroutine to finish.
func (l *Loop) Stop() {
	if !l.running {
		return
	}
	close(l.stopCh)
	<-l.doneCh
	l.running = false
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case now := <-ticker.C:
			l.onTick(now)
		}
	}
}
