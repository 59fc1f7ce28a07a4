package wamp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	gnet "github.com/mosaicnetworks/geocast/src/net"
	"github.com/sirupsen/logrus"
)

// Config holds the parameters needed to reach a WAMP router over the network.
type Config struct {
	// URL of the router, eg. ws://localhost:8000 or wss://broker.example.org
	URL string

	Realm  string
	Prefix string

	// CAFile is the PEM certificate to trust when connecting over wss://
	CAFile             string
	InsecureSkipVerify bool

	ResponseTimeout time.Duration
}

// Transport implements the net.Transport interface on top of a WAMP client.
// Heartbeats, data and envelopes are published on topics under a common
// prefix, and all three families are subscribed to with prefix matching.
type Transport struct {
	sync.RWMutex

	localID string
	prefix  string

	connect func() (*client.Client, error)
	client  *client.Client

	mailbox *gnet.Mailbox
	logger  *logrus.Entry
}

// NewTransport creates a Transport which connects to a router over the
// network when Listen is called.
func NewTransport(localID string,
	conf Config,
	clk clock.Clock,
	logger *logrus.Entry) (*Transport, error) {

	if conf.Realm == "" {
		conf.Realm = DefaultRealm
	}

	logger = logger.WithField("transport", "wamp")

	cfg := client.Config{
		Realm:           conf.Realm,
		ResponseTimeout: conf.ResponseTimeout,
		Logger:          logger,
	}

	if strings.HasPrefix(conf.URL, "wss://") {
		tlscfg, err := clientTLSConfig(conf.CAFile, conf.InsecureSkipVerify, logger)
		if err != nil {
			return nil, err
		}
		cfg.TlsCfg = tlscfg
	}

	connect := func() (*client.Client, error) {
		return client.ConnectNet(context.Background(), conf.URL, cfg)
	}

	return newTransport(localID, conf.Prefix, connect, clk, logger), nil
}

// NewLocalTransport creates a Transport attached directly to an in-process
// router, without going through a websocket.
func NewLocalTransport(localID string,
	realm string,
	prefix string,
	r router.Router,
	clk clock.Clock,
	logger *logrus.Entry) *Transport {

	if realm == "" {
		realm = DefaultRealm
	}

	logger = logger.WithField("transport", "wamp-local")

	cfg := client.Config{
		Realm:  realm,
		Logger: logger,
	}

	connect := func() (*client.Client, error) {
		return client.ConnectLocal(r, cfg)
	}

	return newTransport(localID, prefix, connect, clk, logger)
}

func newTransport(localID string,
	prefix string,
	connect func() (*client.Client, error),
	clk clock.Clock,
	logger *logrus.Entry) *Transport {

	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Transport{
		localID: localID,
		prefix:  prefix,
		connect: connect,
		mailbox: gnet.NewMailbox(localID, clk, logger),
		logger:  logger,
	}
}

// LocalID implements the net.Transport interface.
func (t *Transport) LocalID() string {
	return t.localID
}

// Mailbox implements the net.Transport interface.
func (t *Transport) Mailbox() *gnet.Mailbox {
	return t.mailbox
}

// Listen implements the net.Transport interface. It connects to the router
// and subscribes to the heartbeat, data and envelope topics. If the
// transport is already connected, it does nothing.
func (t *Transport) Listen() error {
	t.Lock()
	defer t.Unlock()

	if t.client != nil && t.client.Connected() {
		return nil
	}

	if t.client != nil {
		t.client.Close()
		t.client = nil
	}

	cli, err := t.connect()
	if err != nil {
		return fmt.Errorf("connecting to WAMP router: %v", err)
	}

	prefixMatch := wamp.Dict{wamp.OptMatch: wamp.MatchPrefix}

	subs := []struct {
		topic   string
		handler client.EventHandler
	}{
		{heartbeatTopic(t.prefix), t.onHeartbeat},
		{dataTopic(t.prefix), t.onData},
		{envelopeTopic(t.prefix), t.onEnvelope},
	}

	for _, s := range subs {
		if err := cli.Subscribe(s.topic, s.handler, prefixMatch); err != nil {
			cli.Close()
			return fmt.Errorf("subscribing to %s: %v", s.topic, err)
		}
	}

	t.client = cli

	t.logger.WithField("prefix", t.prefix).Debug("Subscribed to WAMP topics")

	return nil
}

// Close implements the net.Transport interface.
func (t *Transport) Close() error {
	t.Lock()
	defer t.Unlock()

	if t.client == nil {
		return nil
	}

	err := t.client.Close()
	t.client = nil

	return err
}

// Heartbeat implements the net.Transport interface.
func (t *Transport) Heartbeat() error {
	topic := fmt.Sprintf("%s.%s", heartbeatTopic(t.prefix), t.localID)
	return t.publish(topic, t.localID)
}

// Publish implements the net.Transport interface.
func (t *Transport) Publish(d *gnet.Datum) error {
	raw, err := d.Marshal()
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("%s.%s", dataTopic(t.prefix), d.Key)
	return t.publish(topic, string(raw))
}

// Send implements the net.Transport interface.
func (t *Transport) Send(env *gnet.Envelope) error {
	raw, err := env.Marshal()
	if err != nil {
		return err
	}

	return t.publish(envelopeTopic(t.prefix), string(raw))
}

func (t *Transport) publish(topic string, arg string) error {
	t.RLock()
	cli := t.client
	t.RUnlock()

	if cli == nil || !cli.Connected() {
		return gnet.ErrTransportShutdown
	}

	return cli.Publish(topic, nil, wamp.List{arg}, nil)
}

func firstString(event *wamp.Event) (string, bool) {
	if len(event.Arguments) == 0 {
		return "", false
	}
	return wamp.AsString(event.Arguments[0])
}

func (t *Transport) onHeartbeat(event *wamp.Event) {
	from, ok := firstString(event)
	if !ok {
		t.logger.Debug("Skipping heartbeat without sender")
		return
	}
	t.mailbox.DeliverHeartbeat(from)
}

func (t *Transport) onData(event *wamp.Event) {
	raw, ok := firstString(event)
	if !ok {
		t.logger.Debug("Skipping data event without payload")
		return
	}

	var d gnet.Datum
	if err := d.Unmarshal([]byte(raw)); err != nil {
		t.logger.WithError(err).Debug("Skipping malformed datum")
		return
	}

	t.mailbox.DeliverDatum(d)
}

func (t *Transport) onEnvelope(event *wamp.Event) {
	raw, ok := firstString(event)
	if !ok {
		t.logger.Debug("Skipping envelope event without payload")
		return
	}

	var env gnet.Envelope
	if err := env.Unmarshal([]byte(raw)); err != nil {
		t.logger.WithError(err).Debug("Skipping malformed envelope")
		return
	}

	t.mailbox.DeliverEnvelope(&env)
}
