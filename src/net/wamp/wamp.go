// Package wamp implements the network backend of geocast devices: a
// publish/subscribe Transport over a WAMP router reached through WebSockets,
// and the Server which runs that router.
//
// Every device publishes and subscribes under a common topic prefix (default
// "geocast"):
//
//	<prefix>.heartbeat.<DeviceId>   presence, the DeviceId as argument
//	<prefix>.data.<key>             a JSON encoded Datum
//	<prefix>.envelope               a JSON encoded Envelope
//
// Subscriptions use prefix matching, so a device hears every other device
// connected to the same realm. Payloads that cannot be decoded are logged and
// skipped.
//
// If a cert file is given to the Server it serves wss://, and clients can be
// given the corresponding CA file to trust it. There is also an option to skip
// certificate verification, but this should only be used for testing.
package wamp

const (
	// DefaultRealm is the WAMP realm devices join when none is configured.
	DefaultRealm = "geocast"

	// DefaultPrefix is the default topic prefix.
	DefaultPrefix = "geocast"
)

func heartbeatTopic(prefix string) string {
	return prefix + ".heartbeat"
}

func dataTopic(prefix string) string {
	return prefix + ".data"
}

func envelopeTopic(prefix string) string {
	return prefix + ".envelope"
}
