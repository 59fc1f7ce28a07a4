package net

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NewInmemAddr returns a new in-memory DeviceId based on a random UUID.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemRegistry maps DeviceIds to the in-memory transports currently
// listening. It plays the role of the broker for InmemTransports. A registry
// is created explicitly, typically one per test, and can be cleared between
// runs.
type InmemRegistry struct {
	sync.RWMutex
	transports map[string]*InmemTransport
	cut        map[string]map[string]bool
}

// NewInmemRegistry creates an empty registry.
func NewInmemRegistry() *InmemRegistry {
	return &InmemRegistry{
		transports: make(map[string]*InmemTransport),
		cut:        make(map[string]map[string]bool),
	}
}

func (r *InmemRegistry) register(t *InmemTransport) {
	r.Lock()
	defer r.Unlock()
	r.transports[t.localID] = t
}

func (r *InmemRegistry) unregister(id string) {
	r.Lock()
	defer r.Unlock()
	delete(r.transports, id)
}

// Disconnect cuts the link between a and b in both directions. Both devices
// remain registered and reachable by everyone else.
func (r *InmemRegistry) Disconnect(a, b string) {
	r.Lock()
	defer r.Unlock()

	r.setCut(a, b, true)
	r.setCut(b, a, true)
}

// Connect restores a link cut by Disconnect.
func (r *InmemRegistry) Connect(a, b string) {
	r.Lock()
	defer r.Unlock()

	r.setCut(a, b, false)
	r.setCut(b, a, false)
}

func (r *InmemRegistry) setCut(from, to string, cut bool) {
	if !cut {
		delete(r.cut[from], to)
		return
	}
	if _, ok := r.cut[from]; !ok {
		r.cut[from] = make(map[string]bool)
	}
	r.cut[from][to] = true
}

// Clear removes every transport and every cut link.
func (r *InmemRegistry) Clear() {
	r.Lock()
	defer r.Unlock()

	for _, t := range r.transports {
		t.setListening(false)
	}

	r.transports = make(map[string]*InmemTransport)
	r.cut = make(map[string]map[string]bool)
}

// Registered returns the sorted DeviceIds of the listening transports.
func (r *InmemRegistry) Registered() []string {
	r.RLock()
	defer r.RUnlock()

	res := make([]string, 0, len(r.transports))
	for id := range r.transports {
		res = append(res, id)
	}
	sort.Strings(res)

	return res
}

// targets returns the transports reachable from a device, in DeviceId order.
func (r *InmemRegistry) targets(from string) []*InmemTransport {
	r.RLock()
	defer r.RUnlock()

	ids := make([]string, 0, len(r.transports))
	for id := range r.transports {
		if id == from || r.cut[from][id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := make([]*InmemTransport, len(ids))
	for i, id := range ids {
		res[i] = r.transports[id]
	}

	return res
}

func (r *InmemRegistry) lookup(from, to string) (*InmemTransport, bool) {
	r.RLock()
	defer r.RUnlock()

	if r.cut[from][to] {
		return nil, false
	}

	t, ok := r.transports[to]
	return t, ok
}

// InmemTransport implements the Transport interface, to allow geocast devices
// to be tested in-memory without going over a network. Every call fans out
// synchronously, in the goroutine of the caller, to all the other transports
// listening on the same registry. Receivers get copies.
type InmemTransport struct {
	sync.RWMutex

	localID   string
	registry  *InmemRegistry
	mailbox   *Mailbox
	listening bool

	logger *logrus.Entry
}

// NewInmemTransport is used to initialize a new transport and generates a
// random DeviceId if none is specified. The transport is not reachable until
// Listen is called.
func NewInmemTransport(id string,
	registry *InmemRegistry,
	clk clock.Clock,
	logger *logrus.Entry) *InmemTransport {

	if id == "" {
		id = NewInmemAddr()
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	logger = logger.WithField("transport", "inmem")

	return &InmemTransport{
		localID:  id,
		registry: registry,
		mailbox:  NewMailbox(id, clk, logger),
		logger:   logger,
	}
}

// LocalID implements the Transport interface.
func (i *InmemTransport) LocalID() string {
	return i.localID
}

// Mailbox implements the Transport interface.
func (i *InmemTransport) Mailbox() *Mailbox {
	return i.mailbox
}

// Listen implements the Transport interface. It registers the transport with
// the registry.
func (i *InmemTransport) Listen() error {
	i.setListening(true)
	i.registry.register(i)
	return nil
}

// Close implements the Transport interface. It removes the transport from the
// registry.
func (i *InmemTransport) Close() error {
	i.registry.unregister(i.localID)
	i.setListening(false)
	return nil
}

// Heartbeat implements the Transport interface.
func (i *InmemTransport) Heartbeat() error {
	if !i.isListening() {
		return ErrTransportShutdown
	}

	for _, t := range i.registry.targets(i.localID) {
		t.mailbox.DeliverHeartbeat(i.localID)
	}

	return nil
}

// Publish implements the Transport interface.
func (i *InmemTransport) Publish(d *Datum) error {
	if !i.isListening() {
		return ErrTransportShutdown
	}

	for _, t := range i.registry.targets(i.localID) {
		t.mailbox.DeliverDatum(d.Copy())
	}

	return nil
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(env *Envelope) error {
	if !i.isListening() {
		return ErrTransportShutdown
	}

	for _, t := range i.registry.targets(i.localID) {
		t.mailbox.DeliverEnvelope(env.Copy())
	}

	return nil
}

// SendTo delivers an Envelope to a single device. Sending to a device that is
// not registered, or whose link is cut, is a no-op.
func (i *InmemTransport) SendTo(target string, env *Envelope) error {
	if !i.isListening() {
		return ErrTransportShutdown
	}

	t, ok := i.registry.lookup(i.localID, target)
	if !ok {
		i.logger.WithField("target", target).Debug("SendTo unknown device")
		return nil
	}

	t.mailbox.DeliverEnvelope(env.Copy())

	return nil
}

func (i *InmemTransport) isListening() bool {
	i.RLock()
	defer i.RUnlock()
	return i.listening
}

func (i *InmemTransport) setListening(l bool) {
	i.Lock()
	defer i.Unlock()
	i.listening = l
}
