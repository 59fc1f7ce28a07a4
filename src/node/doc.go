// Package node implements the runtime of a geocast device.
//
// A Node owns the device's transport, neighbour directory, gradient field and
// dissemination engine, and exposes the operations an application calls:
// setting the location, going online or offline, enqueueing messages, raising
// the send trigger, marking the device as a gradient source, and reading the
// list of delivered messages.
//
// Rounds
//
// While online, a node runs one round per period (one second by default),
// driven by a RoundTimer on an injectable clock. Each round, in order:
//
//  1. the transport is (re)connected if it is not listening,
//  2. the directory sends a heartbeat and recomputes the neighbour set,
//  3. the gradient field is updated from the neighbours' last values and the
//     new value is published,
//  4. the dissemination engine drops expired messages and forwards the others
//     if the send trigger is raised.
//
// Inbound envelopes do not wait for a round: the transport's Mailbox hands
// them to the engine as soon as they arrive.
//
// Going offline stops the round loop, cancels the Mailbox subscription,
// closes the transport and freezes the neighbour set. Messages in flight are
// dropped.
package node
