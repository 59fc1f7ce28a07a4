// Package neighbors determines, once per round, which devices a device can
// currently hear.
package neighbors

import (
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/geocast/src/net"
	"github.com/sirupsen/logrus"
)

// Status is the connectivity of a device as seen by its Directory.
type Status uint32

const (
	// Disconnected is the initial status, and the status after the device
	// goes offline or its transport fails.
	Disconnected Status = iota
	// Connected once a round completed successfully.
	Connected
)

// String ...
func (s Status) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connected:
		return "CONNECTED"
	default:
		return "Unknown"
	}
}

// Directory publishes a heartbeat every round and derives the neighbour set
// from the signals the transport's Mailbox received. A device is a neighbour
// if it was heard from within the last round period, inclusive.
type Directory struct {
	sync.RWMutex

	trans  net.Transport
	period time.Duration

	neighbors []string
	status    Status
	lastErr   error

	logger *logrus.Entry
}

// NewDirectory creates a Directory over a transport. period is the round
// period, which is also the presence window.
func NewDirectory(trans net.Transport, period time.Duration, logger *logrus.Entry) *Directory {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Directory{
		trans:     trans,
		period:    period,
		neighbors: []string{},
		status:    Disconnected,
		logger:    logger,
	}
}

// Refresh runs the directory's part of a round: it sends a heartbeat and
// recomputes the neighbour set at now. If the heartbeat fails, the
// neighbour set is left as it was and the status becomes Disconnected.
func (d *Directory) Refresh(now time.Time) error {
	if err := d.trans.Heartbeat(); err != nil {
		d.MarkDisconnected(err)
		return fmt.Errorf("heartbeat: %v", err)
	}

	view := d.trans.Mailbox().NeighborView(now, d.period)

	d.Lock()
	defer d.Unlock()

	if d.status != Connected {
		d.logger.WithField("neighbors", len(view)).Debug("Connected")
	}

	d.neighbors = view
	d.status = Connected
	d.lastErr = nil

	return nil
}

// Neighbors returns the neighbour set computed by the last successful
// Refresh, in sorted order.
func (d *Directory) Neighbors() []string {
	d.RLock()
	defer d.RUnlock()

	res := make([]string, len(d.neighbors))
	copy(res, d.neighbors)

	return res
}

// Status ...
func (d *Directory) Status() Status {
	d.RLock()
	defer d.RUnlock()

	return d.status
}

// LastError returns the error that last caused a disconnection, if any.
func (d *Directory) LastError() error {
	d.RLock()
	defer d.RUnlock()

	return d.lastErr
}

// Stop freezes the neighbour set and flips the status to Disconnected.
func (d *Directory) Stop() {
	d.Lock()
	defer d.Unlock()

	d.status = Disconnected
}

// MarkDisconnected flips the status to Disconnected because of err, typically
// a transport that could not be established.
func (d *Directory) MarkDisconnected(err error) {
	d.Lock()
	defer d.Unlock()

	if d.status == Connected {
		d.logger.WithError(err).Warn("Disconnected")
	}

	d.status = Disconnected
	d.lastErr = err
}
