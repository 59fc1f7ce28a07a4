package node

import (
	"time"

	"github.com/benbjohnson/clock"
)

// RoundTimer relays the ticks of a clock Ticker to the round loop. The ticker
// is created with the timer so that no tick is lost to a clock that advances
// before Run is scheduled.
type RoundTimer struct {
	ticker     *clock.Ticker
	tickCh     chan time.Time //sends a signal to the round loop
	shutdownCh chan struct{}  //receives instruction to exit Run loop
}

// NewRoundTimer ...
func NewRoundTimer(clk clock.Clock, period time.Duration) *RoundTimer {
	return &RoundTimer{
		ticker:     clk.Ticker(period),
		tickCh:     make(chan time.Time),
		shutdownCh: make(chan struct{}),
	}
}

// Run forwards ticks until Shutdown.
func (c *RoundTimer) Run() {
	defer c.ticker.Stop()

	for {
		select {
		case t := <-c.ticker.C:
			select {
			case c.tickCh <- t:
			case <-c.shutdownCh:
				return
			}
		case <-c.shutdownCh:
			return
		}
	}
}

// Shutdown stops the timer.
func (c *RoundTimer) Shutdown() {
	close(c.shutdownCh)
}
