// Package net implements the transports through which geocast devices
// exchange presence, aggregate field values, and messages.
//
// A Transport has three logical channels:
//
// - Heartbeat: a presence signal keyed by the DeviceId of the sender.
//
// - Data: one channel per aggregate key (eg. "gradient") carrying a Datum, the
// latest value a device publishes for that key.
//
// - Envelope: messages handed over for fan-out to every current neighbour.
//
// Whatever the backend, inbound traffic lands in a Mailbox. The Mailbox keeps
// the time each neighbour was last heard from, the latest Datum per neighbour
// and key, and a log of received Envelopes, which it also republishes to
// subscribed handlers.
//
// There are two implementations:
//
// - Inmem: an in-process registry that fans out synchronously, in DeviceId
// order, to every other registered transport. Values are copied, never
// serialized. It is used for deterministic testing and simulation.
//
// - WAMP (package wamp): a publish/subscribe client connected to a WAMP
// router. Data and Envelopes are serialized to JSON with the codec in this
// package.
package net
