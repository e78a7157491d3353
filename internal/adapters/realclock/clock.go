// Package realclock provides a real implementation of the Clock port using the time package.
package realclock

import (
	"time"

	"github.com/acolita/sftpfs/internal/ports"
)

// Clock implements ports.Clock using the standard time package.
type Clock struct{}

// New returns a new real Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now()
}

// NewTicker returns a Ticker backed by time.NewTicker.
func (c *Clock) NewTicker(d time.Duration) ports.Ticker {
	return &ticker{t: time.NewTicker(d)}
}

type ticker struct {
	t *time.Ticker
}

func (t *ticker) C() <-chan time.Time { return t.t.C }

func (t *ticker) Stop() { t.t.Stop() }

var _ ports.Clock = (*Clock)(nil)
