package net

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/geocast/src/common"
	"github.com/sirupsen/logrus"
)

// DefaultReceiveLogSize is the number of envelopes a Mailbox keeps in its
// receive log before rolling older ones out.
const DefaultReceiveLogSize = 500

type receivedDatum struct {
	datum Datum
	at    time.Time
}

// EnvelopeHandler is invoked for every Envelope delivered to a Mailbox.
type EnvelopeHandler func(env *Envelope)

// Mailbox is the receiving end of a Transport. Backends push heartbeats, data
// and envelopes into it; the NeighborDirectory, GradientField and
// DisseminationEngine read from it.
type Mailbox struct {
	sync.RWMutex

	localID string
	clock   clock.Clock

	lastSeen map[string]time.Time
	data     map[string]map[string]receivedDatum // key => from => latest datum
	log      *common.RollingIndex

	handlers    map[int]EnvelopeHandler
	nextHandler int

	logger *logrus.Entry
}

// NewMailbox creates an empty Mailbox for the device localID. Arrival times
// are read from clk.
func NewMailbox(localID string, clk clock.Clock, logger *logrus.Entry) *Mailbox {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Mailbox{
		localID:  localID,
		clock:    clk,
		lastSeen: make(map[string]time.Time),
		data:     make(map[string]map[string]receivedDatum),
		log:      common.NewRollingIndex("Received", DefaultReceiveLogSize),
		handlers: make(map[int]EnvelopeHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for inbound envelopes and returns a function
// that cancels the subscription.
func (m *Mailbox) Subscribe(handler EnvelopeHandler) (cancel func()) {
	m.Lock()
	id := m.nextHandler
	m.nextHandler++
	m.handlers[id] = handler
	m.Unlock()

	return func() {
		m.Lock()
		delete(m.handlers, id)
		m.Unlock()
	}
}

// DeliverHeartbeat records a presence signal from a device.
func (m *Mailbox) DeliverHeartbeat(from string) {
	if from == m.localID || from == "" {
		return
	}

	m.Lock()
	m.lastSeen[from] = m.clock.Now()
	m.Unlock()
}

// DeliverDatum records the latest Datum published by a device for a key. It
// also counts as a presence signal.
func (m *Mailbox) DeliverDatum(d Datum) {
	if d.From == m.localID {
		return
	}

	if err := d.validate(); err != nil {
		m.logger.WithError(err).Debug("Skipping datum")
		return
	}

	m.Lock()
	defer m.Unlock()

	now := m.clock.Now()
	m.lastSeen[d.From] = now

	byFrom, ok := m.data[d.Key]
	if !ok {
		byFrom = make(map[string]receivedDatum)
		m.data[d.Key] = byFrom
	}
	byFrom[d.From] = receivedDatum{datum: d, at: now}
}

// DeliverEnvelope appends an Envelope to the receive log and passes it on to
// every subscribed handler. Handlers are called outside the Mailbox lock, in
// the goroutine of the caller.
func (m *Mailbox) DeliverEnvelope(env *Envelope) {
	if env.SenderID == m.localID {
		return
	}

	if err := env.validate(); err != nil {
		m.logger.WithError(err).Debug("Skipping envelope")
		return
	}

	m.Lock()
	m.lastSeen[env.SenderID] = m.clock.Now()
	m.log.Append(env)

	ids := make([]int, 0, len(m.handlers))
	for id := range m.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	handlers := make([]EnvelopeHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, m.handlers[id])
	}
	m.Unlock()

	for _, h := range handlers {
		h(env)
	}
}

// NeighborView returns, in sorted order, the devices heard from within window
// of now. The window is inclusive.
func (m *Mailbox) NeighborView(now time.Time, window time.Duration) []string {
	m.RLock()
	defer m.RUnlock()

	res := []string{}
	for id, seen := range m.lastSeen {
		if now.Sub(seen) <= window {
			res = append(res, id)
		}
	}

	sort.Strings(res)

	return res
}

// LastSeen returns the time of the last signal received from a device.
func (m *Mailbox) LastSeen(id string) (time.Time, bool) {
	m.RLock()
	defer m.RUnlock()

	t, ok := m.lastSeen[id]
	return t, ok
}

// Datum returns a copy of the latest Datum published by a device for key.
func (m *Mailbox) Datum(from, key string) (Datum, bool) {
	m.RLock()
	defer m.RUnlock()

	r, ok := m.data[key][from]
	if !ok {
		return Datum{}, false
	}

	return r.datum.Copy(), true
}

// DataWithin returns a view of the data published within window of now. A
// device that stopped publishing, for instance because it lost its location,
// drops out of the view once its last datum is older than window, even if it
// is still heard from.
func (m *Mailbox) DataWithin(now time.Time, window time.Duration) *DataView {
	return &DataView{mailbox: m, now: now, window: window}
}

// DataView reads the data of a Mailbox, ignoring anything published before
// the window. The window is inclusive, like NeighborView.
type DataView struct {
	mailbox *Mailbox
	now     time.Time
	window  time.Duration
}

// Datum returns a copy of the latest Datum published by a device for key, if
// it arrived within the window.
func (v *DataView) Datum(from, key string) (Datum, bool) {
	v.mailbox.RLock()
	defer v.mailbox.RUnlock()

	r, ok := v.mailbox.data[key][from]
	if !ok || v.now.Sub(r.at) > v.window {
		return Datum{}, false
	}

	return r.datum.Copy(), true
}

// Received returns the envelopes in the receive log, oldest first.
func (m *Mailbox) Received() []*Envelope {
	m.RLock()
	defer m.RUnlock()

	window, _ := m.log.GetLastWindow()

	res := make([]*Envelope, len(window))
	for i, item := range window {
		res[i] = item.(*Envelope).Copy()
	}

	return res
}

// ReceivedCount returns the total number of envelopes ever logged.
func (m *Mailbox) ReceivedCount() int {
	m.RLock()
	defer m.RUnlock()

	return m.log.LastIndex() + 1
}
