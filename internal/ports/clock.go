// Package ports defines interfaces for external dependencies (Ports and Adapters pattern).
package ports

import "time"

// Clock abstracts time for connection keepalives and the timestamps in
// temporary backup names.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker that delivers the current time every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker wraps time.Ticker for testing.
type Ticker interface {
	// C returns the channel on which ticks are delivered.
	C() <-chan time.Time

	// Stop turns off the ticker.
	Stop()
}
