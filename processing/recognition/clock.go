package recognition

import (
	"context"
	"time"
)

// FrameClock paces the video loop. Next blocks until the next frame is due or
// ctx is done.
type FrameClock interface {
	Next(ctx context.Context) error
}

type TickerClock struct {
	ticker *time.Ticker
}

func NewTickerClock(fps uint) *TickerClock {
	if fps == 0 {
		fps = 1
	}
	return &TickerClock{ticker: time.NewTicker(time.Second / time.Duration(fps))}
}

func (c *TickerClock) Next(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ticker.C:
		return nil
	}
}

func (c *TickerClock) Stop() { c.ticker.Stop() }

// ManualClock releases one frame per Tick.
type ManualClock struct {
	ch chan struct{}
}

func NewManualClock() *ManualClock {
	return &ManualClock{ch: make(chan struct{})}
}

// Tick blocks until the loop consumes the tick or ctx is done.
func (c *ManualClock) Tick(ctx context.Context) bool {
	select {
	case c.ch <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *ManualClock) Next(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ch:
		return nil
	}
}
