package node

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/geocast/src/dissemination"
	"github.com/mosaicnetworks/geocast/src/geo"
	"github.com/mosaicnetworks/geocast/src/gradient"
	"github.com/mosaicnetworks/geocast/src/message"
	"github.com/mosaicnetworks/geocast/src/neighbors"
	"github.com/mosaicnetworks/geocast/src/net"
	"github.com/sirupsen/logrus"
)

// ErrOffline is returned by operations that need the round loop to be running.
var ErrOffline = errors.New("device is offline")

// Node is a geocast device. It owns the transport, the neighbour directory,
// the gradient field and the dissemination engine of the device, and runs the
// round loop that drives them while the device is online.
type Node struct {
	state

	conf   *Config
	id     string
	logger *logrus.Entry

	trans     net.Transport
	directory *neighbors.Directory
	field     *gradient.Field
	engine    *dissemination.Engine

	// onlineLock serializes SetOnlineStatus
	onlineLock sync.Mutex
	roundTimer *RoundTimer
	shutdownCh chan struct{}
	cancelSub  func()

	// mu protects the device state below
	mu          sync.RWMutex
	location    *geo.GeoPoint
	isSource    bool
	sourceSince *time.Time
	sendFlag    bool
	listening   bool

	start  time.Time
	rounds int64
}

// NewNode is a factory method that returns a Node instance. The node starts
// offline, without location, and not a source.
func NewNode(conf *Config, trans net.Transport) *Node {
	id := trans.LocalID()

	logger := conf.Logger.WithField("this_id", id)
	if conf.Moniker != "" {
		logger = logger.WithField("moniker", conf.Moniker)
	}

	field := gradient.NewField(id, conf.Horizon, logger.WithField("component", "gradient"))

	engine := dissemination.NewEngine(id,
		dissemination.Config{AutoRelay: conf.AutoRelay},
		trans,
		field,
		conf.Clock,
		logger.WithField("component", "dissemination"))

	node := Node{
		conf:      conf,
		id:        id,
		logger:    logger,
		trans:     trans,
		directory: neighbors.NewDirectory(trans, conf.RoundPeriod, logger.WithField("component", "neighbors")),
		field:     field,
		engine:    engine,
		start:     conf.Clock.Now(),
	}

	return &node
}

// SetLocation updates the location of the device. nil puts the device in
// read-only mode: it can still receive and display messages, but not forward
// them.
func (n *Node) SetLocation(location *geo.GeoPoint) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if location == nil {
		n.location = nil
		n.field.SetPosition(nil)
		n.engine.SetPosition(nil)
		n.logger.Debug("Location cleared")
		return
	}

	loc := *location
	n.location = &loc

	pos := geo.ToCartesian(loc)
	n.field.SetPosition(&pos)
	n.engine.SetPosition(&pos)
}

// SetOnlineStatus starts or stops the round loop and the transport
// subscription. Failing to reach the backend is not an error: the device
// reports DISCONNECTED and retries on every round.
func (n *Node) SetOnlineStatus(online bool) error {
	return n.setOnline(online, true)
}

func (n *Node) setOnline(online bool, runLoop bool) error {
	n.onlineLock.Lock()
	defer n.onlineLock.Unlock()

	if online == (n.getState() == Online) {
		return nil
	}

	if online {
		n.logger.Debug("Going online")

		n.cancelSub = n.trans.Mailbox().Subscribe(n.engine.Receive)
		n.shutdownCh = make(chan struct{})
		n.setState(Online)

		n.listen()

		if runLoop {
			n.roundTimer = NewRoundTimer(n.conf.Clock, n.conf.RoundPeriod)
			timer, shutdownCh := n.roundTimer, n.shutdownCh
			n.goFunc(timer.Run)
			n.goFunc(func() { n.run(timer, shutdownCh) })
		}

		return nil
	}

	n.logger.Debug("Going offline")

	n.setState(Offline)

	close(n.shutdownCh)
	if n.roundTimer != nil {
		n.roundTimer.Shutdown()
		n.roundTimer = nil
	}

	n.waitRoutines()

	n.cancelSub()
	n.directory.Stop()

	n.mu.Lock()
	n.listening = false
	n.mu.Unlock()

	n.logStats()

	if err := n.trans.Close(); err != nil {
		return fmt.Errorf("closing transport: %v", err)
	}

	return nil
}

// EnqueueMessage creates a message originated by this device and queues it
// until the send trigger is raised.
func (n *Node) EnqueueMessage(text string,
	createdAt time.Time,
	distanceBudget float64,
	spreadingTime time.Duration) message.Message {

	return n.engine.Enqueue(text, createdAt, distanceBudget, spreadingTime)
}

// SubmitMessage enqueues a message created now and raises the send trigger.
func (n *Node) SubmitMessage(text string,
	distanceBudget float64,
	spreadingTime time.Duration) (message.Message, error) {

	if n.getState() != Online {
		return message.Message{}, ErrOffline
	}

	// enqueue and raise the trigger together so that a concurrent round
	// cannot clear it in between
	n.mu.Lock()
	defer n.mu.Unlock()

	msg := n.engine.Enqueue(text, n.conf.Clock.Now(), distanceBudget, spreadingTime)
	n.sendFlag = true

	return msg, nil
}

// SetSendFlag raises or clears the send trigger. While it is raised, pending
// messages are forwarded on every round. The round loop clears it once the
// device's own messages have all left the queue.
func (n *Node) SetSendFlag(send bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sendFlag = send
}

// MarkAsSource makes the device a gradient source from now on.
func (n *Node) MarkAsSource(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.isSource = true
	n.sourceSince = &now
	n.field.SetSource(true)
}

// ClearSourceStatus stops the device from acting as a gradient source.
func (n *Node) ClearSourceStatus() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.isSource = false
	n.sourceSince = nil
	n.field.SetSource(false)
}

// GetCurrentListOfMessages returns the messages delivered to this device, in
// order of receipt.
func (n *Node) GetCurrentListOfMessages() []message.Delivered {
	return n.engine.Delivered()
}

// OnDeliver registers a handler called for every message delivered to this
// device.
func (n *Node) OnDeliver(handler dissemination.DeliveryHandler) {
	n.engine.OnDeliver(handler)
}

func (n *Node) run(timer *RoundTimer, shutdownCh chan struct{}) {
	for {
		select {
		case now := <-timer.tickCh:
			n.step(now)
		case <-shutdownCh:
			return
		}
	}
}

// listen (re)connects the transport if it is not listening. On failure the
// directory reports DISCONNECTED.
func (n *Node) listen() bool {
	n.mu.RLock()
	listening := n.listening
	n.mu.RUnlock()

	if listening {
		return true
	}

	if err := n.trans.Listen(); err != nil {
		n.logger.WithError(err).Debug("Listen")
		n.directory.MarkDisconnected(err)
		return false
	}

	n.mu.Lock()
	n.listening = true
	n.mu.Unlock()

	return true
}

// step runs one round at now: directory refresh, then gradient update and
// publication, then the dissemination round.
func (n *Node) step(now time.Time) dissemination.RoundResult {
	if n.getState() != Online {
		return dissemination.RoundResult{}
	}

	atomic.AddInt64(&n.rounds, 1)

	var nbrs []string

	if n.listen() {
		if err := n.directory.Refresh(now); err != nil {
			n.logger.WithError(err).Debug("Refresh")

			n.mu.Lock()
			n.listening = false
			n.mu.Unlock()
		} else {
			nbrs = n.directory.Neighbors()
		}
	}

	n.field.Update(nbrs, n.trans.Mailbox().DataWithin(now, n.conf.RoundPeriod))

	if d := n.field.Datum(); d != nil && nbrs != nil {
		if err := n.trans.Publish(d); err != nil {
			n.logger.WithError(err).Debug("Publishing gradient")
		}
	}

	n.mu.RLock()
	send := n.sendFlag
	n.mu.RUnlock()

	res := n.engine.Round(now, len(nbrs), send)

	if send {
		n.clearSendFlagIfDone()
	}

	return res
}

// clearSendFlagIfDone lowers the send trigger once none of the device's own
// messages is left in the pending queue. It is a one-shot trigger: messages
// enqueued afterwards wait for it to be raised again.
func (n *Node) clearSendFlagIfDone() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sendFlag && n.engine.OwnPending() == 0 {
		n.sendFlag = false
		n.logger.Debug("Send trigger cleared")
	}
}

// ID returns the DeviceId
func (n *Node) ID() string {
	return n.id
}

// State returns a snapshot of the device state.
func (n *Node) State() DeviceState {
	n.mu.RLock()
	defer n.mu.RUnlock()

	s := DeviceState{
		Online:   n.getState() == Online,
		IsSource: n.isSource,
	}
	if n.sourceSince != nil {
		since := *n.sourceSince
		s.SourceSince = &since
	}
	if n.location != nil {
		loc := *n.location
		s.Location = &loc
	}

	return s
}

// Status returns the connectivity status reported by the neighbour directory.
func (n *Node) Status() neighbors.Status {
	return n.directory.Status()
}

// Neighbors returns the neighbour set of the last round.
func (n *Node) Neighbors() []string {
	return n.directory.Neighbors()
}

// Gradients returns the device's distance to every known source.
func (n *Node) Gradients() map[string]float64 {
	return n.field.Values()
}

// Pending returns the messages waiting to be forwarded.
func (n *Node) Pending() []dissemination.PendingEntry {
	return n.engine.Pending()
}

// Received returns the envelopes in the transport's receive log.
func (n *Node) Received() []*net.Envelope {
	return n.trans.Mailbox().Received()
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	st := n.State()

	timeElapsed := n.conf.Clock.Since(n.start)
	rounds := atomic.LoadInt64(&n.rounds)

	var roundsPerSecond float64
	if timeElapsed > 0 {
		roundsPerSecond = float64(rounds) / timeElapsed.Seconds()
	}

	location := "none"
	if st.Location != nil {
		location = st.Location.String()
	}

	s := map[string]string{
		"id":                n.id,
		"moniker":           n.conf.Moniker,
		"state":             n.getState().String(),
		"status":            n.Status().String(),
		"is_source":         strconv.FormatBool(st.IsSource),
		"location":          location,
		"num_neighbors":     strconv.Itoa(len(n.Neighbors())),
		"num_sources":       strconv.Itoa(len(n.Gradients())),
		"pending":           strconv.Itoa(len(n.Pending())),
		"delivered":         strconv.Itoa(len(n.GetCurrentListOfMessages())),
		"received":          strconv.Itoa(n.trans.Mailbox().ReceivedCount()),
		"rounds":            strconv.FormatInt(rounds, 10),
		"rounds_per_second": strconv.FormatFloat(roundsPerSecond, 'f', 2, 64),
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"status":        stats["status"],
		"num_neighbors": stats["num_neighbors"],
		"pending":       stats["pending"],
		"delivered":     stats["delivered"],
		"received":      stats["received"],
		"rounds":        stats["rounds"],
		"rounds/s":      stats["rounds_per_second"],
	}).Debug("Stats")
}
