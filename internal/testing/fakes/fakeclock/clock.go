// Package fakeclock provides a controllable Clock implementation for testing.
package fakeclock

import (
	"sync"
	"time"

	"github.com/acolita/sftpfs/internal/ports"
)

// Clock is a fake clock that can be controlled in tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*Ticker
}

// New creates a new fake clock initialized to the given time.
func New(initial time.Time) *Clock {
	return &Clock{current: initial}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker returns a fake ticker. It only fires when Advance crosses an
// interval boundary or the test calls Tick.
func (c *Clock) NewTicker(d time.Duration) ports.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &Ticker{
		clock:    c,
		interval: d,
		next:     c.current.Add(d),
		ch:       make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Tickers returns every ticker created so far.
func (c *Clock) Tickers() []*Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Ticker, len(c.tickers))
	copy(out, c.tickers)
	return out
}

// Advance moves the clock forward by d, firing tickers whose interval elapsed.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	tickers := make([]*Ticker, len(c.tickers))
	copy(tickers, c.tickers)
	c.mu.Unlock()

	for _, t := range tickers {
		t.advanceTo(now)
	}
}

// Ticker is a fake ticker for testing.
type Ticker struct {
	clock    *Clock
	interval time.Duration
	ch       chan time.Time

	mu      sync.Mutex
	next    time.Time
	stopped bool
}

// C returns the channel on which ticks are delivered.
func (t *Ticker) C() <-chan time.Time {
	return t.ch
}

// Stop turns off the ticker.
func (t *Ticker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// Stopped reports whether Stop was called.
func (t *Ticker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Tick manually sends a tick. Ticks are dropped while one is pending, like time.Ticker.
func (t *Ticker) Tick() {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()

	if !stopped {
		select {
		case t.ch <- t.clock.Now():
		default:
		}
	}
}

func (t *Ticker) advanceTo(now time.Time) {
	t.mu.Lock()
	fire := !t.stopped && t.interval > 0 && !now.Before(t.next)
	for t.interval > 0 && !now.Before(t.next) {
		t.next = t.next.Add(t.interval)
	}
	t.mu.Unlock()

	if fire {
		select {
		case t.ch <- now:
		default:
		}
	}
}

// Ensure Clock implements ports.Clock.
var _ ports.Clock = (*Clock)(nil)
