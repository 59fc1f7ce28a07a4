// Package dissemination decides, for one device, which messages to forward,
// accept, or drop.
//
// A message enters the engine either from the device itself (Enqueue) or from
// a neighbour (Receive). In both cases it becomes a PendingEntry. Every round,
// pending entries whose spreading time has elapsed are dropped, and, if the
// send trigger is raised, the others are forwarded to all neighbours as long
// as the device's distance from the origin is within the message's budget. A
// forwarded entry leaves the queue; an entry over budget stays and is
// evaluated again on the next round, until it expires.
//
// On the receiving side, the device computes its own distance from the origin
// from the sender's distance and position, and admits the message iff that
// distance is within budget. Admitted messages are recorded as Delivered and
// queued for relay with their original creation time and budget.
package dissemination

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/geocast/src/geo"
	"github.com/mosaicnetworks/geocast/src/gradient"
	"github.com/mosaicnetworks/geocast/src/message"
	"github.com/mosaicnetworks/geocast/src/net"
	"github.com/sirupsen/logrus"
)

// Sender hands envelopes to the backend for fan-out. It is implemented by
// net.Transport.
type Sender interface {
	Send(env *net.Envelope) error
}

// Gradient gives the device's current distance estimate to a source. It is
// implemented by gradient.Field.
type Gradient interface {
	Value(source string) (float64, bool)
}

// DeliveryHandler is called for every message the engine admits.
type DeliveryHandler func(d message.Delivered)

// PendingEntry is a message waiting to be forwarded by this device. Distance
// is the device's distance from the origin when the entry was queued; 0 for
// the originator.
type PendingEntry struct {
	Message    message.Message `json:"message"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Distance   float64         `json:"distance"`
}

// RoundResult lists, by message ID, what a round did with each pending entry.
type RoundResult struct {
	Forwarded []string
	Expired   []string
	Held      []string
	// Failed are forwarded entries the transport could not send.
	Failed []string
}

// Config ...
type Config struct {
	// AutoRelay lets received messages be forwarded without waiting for the
	// send trigger. Messages originated by the device always wait for it.
	AutoRelay bool
}

// Engine is the dissemination state of one device.
type Engine struct {
	sync.Mutex

	id     string
	conf   Config
	sender Sender
	field  Gradient
	clock  clock.Clock

	position  *geo.CartesianPoint
	pending   []*PendingEntry
	known     map[string]bool
	delivered []message.Delivered

	handlers []DeliveryHandler

	logger *logrus.Entry
}

// NewEngine creates an Engine for the device id.
func NewEngine(id string,
	conf Config,
	sender Sender,
	field Gradient,
	clk clock.Clock,
	logger *logrus.Entry) *Engine {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Engine{
		id:     id,
		conf:   conf,
		sender: sender,
		field:  field,
		clock:  clk,
		known:  make(map[string]bool),
		logger: logger,
	}
}

// SetPosition sets the device's position. Without a position the device can
// neither forward nor admit messages, but still records what it receives.
func (e *Engine) SetPosition(pos *geo.CartesianPoint) {
	e.Lock()
	defer e.Unlock()

	if pos == nil {
		e.position = nil
		return
	}

	p := *pos
	e.position = &p
}

// OnDeliver registers a handler called, outside the engine lock, for every
// delivered message.
func (e *Engine) OnDeliver(handler DeliveryHandler) {
	e.Lock()
	defer e.Unlock()

	e.handlers = append(e.handlers, handler)
}

// Enqueue creates a message originated by this device and queues it. The
// originator is at distance 0 from its own messages.
func (e *Engine) Enqueue(text string,
	createdAt time.Time,
	budget float64,
	spreading time.Duration) message.Message {

	msg := message.NewMessage(text, e.id, e.id, createdAt, budget, spreading)

	e.Lock()
	defer e.Unlock()

	e.known[msg.ID] = true
	e.pending = append(e.pending, &PendingEntry{
		Message:    msg,
		EnqueuedAt: createdAt,
		Distance:   0,
	})

	e.logger.WithField("message", msg.ID).Debug("Enqueued")

	return msg
}

// Round evaluates every pending entry at now. Expired entries are dropped.
// When send is raised, the device has a position, and it has at least one
// neighbour, entries within budget are forwarded and removed.
func (e *Engine) Round(now time.Time, neighborCount int, send bool) RoundResult {
	res := RoundResult{}

	envelopes := e.evaluate(now, neighborCount, send, &res)

	for _, env := range envelopes {
		if err := e.sender.Send(env); err != nil {
			e.logger.WithError(err).WithField("message", env.Message.ID).Warn("Forwarding")
			res.Failed = append(res.Failed, env.Message.ID)
		}
	}

	if len(res.Forwarded) > 0 || len(res.Expired) > 0 {
		e.logger.WithFields(logrus.Fields{
			"forwarded": len(res.Forwarded),
			"expired":   len(res.Expired),
			"held":      len(res.Held),
		}).Debug("Round")
	}

	return res
}

// evaluate builds the envelopes to send under the lock. They are sent after
// the lock is released because in-memory fan-out is synchronous.
func (e *Engine) evaluate(now time.Time, neighborCount int, send bool, res *RoundResult) []*net.Envelope {
	e.Lock()
	defer e.Unlock()

	envelopes := []*net.Envelope{}
	remaining := make([]*PendingEntry, 0, len(e.pending))

	for _, entry := range e.pending {
		msg := entry.Message

		if msg.Expired(now) {
			res.Expired = append(res.Expired, msg.ID)
			continue
		}

		triggered := send || (e.conf.AutoRelay && msg.OriginID != e.id)

		if !triggered || e.position == nil || neighborCount == 0 {
			res.Held = append(res.Held, msg.ID)
			remaining = append(remaining, entry)
			continue
		}

		g := e.distanceFromOrigin(entry)

		if !gradient.Accepts(g, 0, msg.DistanceBudget) {
			res.Held = append(res.Held, msg.ID)
			remaining = append(remaining, entry)
			continue
		}

		envelopes = append(envelopes, &net.Envelope{
			Message:        msg,
			SenderID:       e.id,
			SenderPosition: *e.position,
			SenderGradient: g,
		})
		res.Forwarded = append(res.Forwarded, msg.ID)
	}

	e.pending = remaining

	return envelopes
}

// distanceFromOrigin is 0 for the device's own messages, and otherwise the
// lower of the distance at enqueue time and the current gradient value for
// the origin.
func (e *Engine) distanceFromOrigin(entry *PendingEntry) float64 {
	if entry.Message.OriginID == e.id {
		return 0
	}

	g := entry.Distance
	if v, ok := e.fieldValue(entry.Message.OriginID); ok && v < g {
		g = v
	}

	return g
}

func (e *Engine) fieldValue(source string) (float64, bool) {
	if e.field == nil {
		return 0, false
	}
	return e.field.Value(source)
}

// Receive handles an envelope delivered by the transport. It is safe to call
// concurrently.
func (e *Engine) Receive(env *net.Envelope) {
	now := e.clock.Now()
	msg := env.Message

	logger := e.logger.WithFields(logrus.Fields{
		"message":  msg.ID,
		"neighbor": env.SenderID,
	})

	e.Lock()

	if msg.OriginID == e.id || e.known[msg.ID] {
		e.Unlock()
		return
	}

	if msg.Expired(now) {
		e.Unlock()
		logger.Debug("Dropping expired message")
		return
	}

	var delivered message.Delivered

	if e.position == nil {
		e.known[msg.ID] = true
		delivered = message.Delivered{
			Message:    msg,
			ReceivedAt: now,
			Located:    false,
		}
	} else {
		edge := geo.Distance(*e.position, env.SenderPosition)
		g := env.SenderGradient + edge

		admitted := gradient.Accepts(env.SenderGradient, edge, msg.DistanceBudget)

		if v, ok := e.fieldValue(msg.OriginID); ok && v < g {
			g = v
			admitted = gradient.Accepts(v, 0, msg.DistanceBudget)
		}

		if !admitted {
			e.Unlock()
			logger.WithField("distance", g).Debug("Out of range")
			return
		}

		e.known[msg.ID] = true
		delivered = message.Delivered{
			Message:    msg,
			ReceivedAt: now,
			Distance:   g,
			Located:    true,
		}
		e.pending = append(e.pending, &PendingEntry{
			Message:    msg,
			EnqueuedAt: now,
			Distance:   g,
		})
	}

	e.delivered = append(e.delivered, delivered)

	handlers := make([]DeliveryHandler, len(e.handlers))
	copy(handlers, e.handlers)

	e.Unlock()

	logger.WithFields(logrus.Fields{
		"distance": delivered.Distance,
		"located":  delivered.Located,
	}).Debug("Delivered")

	for _, h := range handlers {
		h(delivered)
	}
}

// Pending returns a snapshot of the pending queue.
func (e *Engine) Pending() []PendingEntry {
	e.Lock()
	defer e.Unlock()

	res := make([]PendingEntry, len(e.pending))
	for i, p := range e.pending {
		res[i] = *p
	}

	return res
}

// OwnPending returns the number of pending entries originated by this device.
func (e *Engine) OwnPending() int {
	e.Lock()
	defer e.Unlock()

	count := 0
	for _, p := range e.pending {
		if p.Message.OriginID == e.id {
			count++
		}
	}

	return count
}

// Delivered returns the messages delivered to this device, in order of
// receipt.
func (e *Engine) Delivered() []message.Delivered {
	e.Lock()
	defer e.Unlock()

	res := make([]message.Delivered, len(e.delivered))
	copy(res, e.delivered)

	return res
}
