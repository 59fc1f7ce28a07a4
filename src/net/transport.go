package net

import "errors"

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked while it is not listening.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// Transport provides an interface for network transports to allow a device to
// communicate with its neighbours. Nothing a Transport sends is guaranteed to
// be delivered.
type Transport interface {

	// LocalID returns the DeviceId this transport publishes as.
	LocalID() string

	// Listen connects to the backend and starts delivering inbound traffic to
	// the Mailbox. It can be called again after Close.
	Listen() error

	// Heartbeat publishes a presence signal.
	Heartbeat() error

	// Publish publishes a Datum on the data channel of its key.
	Publish(d *Datum) error

	// Send hands an Envelope to the backend for delivery to all current
	// neighbours.
	Send(env *Envelope) error

	// Mailbox returns the receiving end of the transport.
	Mailbox() *Mailbox

	// Close stops delivering inbound traffic and releases the connection to
	// the backend.
	Close() error
}
