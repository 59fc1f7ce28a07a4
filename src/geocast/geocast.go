// Package geocast assembles a geocast device from its configuration: key,
// transport, node, message store and HTTP service.
package geocast

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/geocast/src/config"
	"github.com/mosaicnetworks/geocast/src/crypto/keys"
	"github.com/mosaicnetworks/geocast/src/message"
	"github.com/mosaicnetworks/geocast/src/net"
	"github.com/mosaicnetworks/geocast/src/net/wamp"
	"github.com/mosaicnetworks/geocast/src/node"
	"github.com/mosaicnetworks/geocast/src/service"
	"github.com/mosaicnetworks/geocast/src/store"
	"github.com/sirupsen/logrus"
)

// Geocast is a geocast device and the services around it.
type Geocast struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     *store.InmemStore
	Service   *service.Service

	// Registry connects the devices of the inmem backend. Devices which
	// should hear each other must share it. A new one is created by Init if
	// it is nil.
	Registry *net.InmemRegistry

	logger *logrus.Entry
}

// NewGeocast is a factory method that returns a Geocast. Init must be called
// before Run.
func NewGeocast(c *config.Config) *Geocast {
	return &Geocast{
		Config: c,
		logger: c.Logger(),
	}
}

// Init initializes the device.
func (g *Geocast) Init() error {
	if g.Config.Clock == nil {
		g.Config.Clock = clock.New()
	}

	if err := g.initKey(); err != nil {
		return err
	}

	if err := g.initTransport(); err != nil {
		return err
	}

	if err := g.initNode(); err != nil {
		return err
	}

	g.initStore()

	g.initService()

	return nil
}

func (g *Geocast) initKey() error {
	if g.Config.DeviceID != "" {
		return nil
	}

	if g.Config.Key == nil {
		keyfile := keys.NewSimpleKeyfile(g.Config.Keyfile())

		key, err := keyfile.ReadOrGenerate()
		if err != nil {
			g.logger.WithError(err).Error("Cannot read or generate private key")
			return err
		}

		g.Config.Key = key
	}

	g.Config.DeviceID = keys.DeviceID(&g.Config.Key.PublicKey)

	g.logger.WithField("id", g.Config.DeviceID).Debug("Device key loaded")

	return nil
}

func (g *Geocast) initTransport() error {
	switch g.Config.Backend {
	case config.BackendInmem:
		if g.Registry == nil {
			g.Registry = net.NewInmemRegistry()
		}

		g.Transport = net.NewInmemTransport(g.Config.DeviceID,
			g.Registry,
			g.Config.Clock,
			g.Config.Logger())

	case config.BackendWAMP, "":
		trans, err := wamp.NewTransport(g.Config.DeviceID,
			wamp.Config{
				URL:                g.Config.BrokerURL,
				Realm:              g.Config.Realm,
				Prefix:             g.Config.TopicPrefix,
				CAFile:             g.caFile(),
				InsecureSkipVerify: g.Config.BrokerSkipVerify,
				ResponseTimeout:    g.Config.Timeout,
			},
			g.Config.Clock,
			g.Config.Logger())
		if err != nil {
			return err
		}

		g.Transport = trans

	default:
		return fmt.Errorf("unknown backend %q", g.Config.Backend)
	}

	return nil
}

// caFile returns the broker certificate in the datadir if there is one.
func (g *Geocast) caFile() string {
	if _, err := os.Stat(g.Config.CertFile()); err == nil {
		return g.Config.CertFile()
	}
	return ""
}

func (g *Geocast) initNode() error {
	location, err := g.Config.GeoLocation()
	if err != nil {
		return err
	}

	conf := node.NewConfig(g.Config.RoundPeriod,
		g.Config.Horizon,
		g.Config.AutoRelay,
		g.Config.Moniker,
		g.Config.Clock,
		g.Config.BaseLogger())

	g.Node = node.NewNode(conf, g.Transport)

	if location != nil {
		g.Node.SetLocation(location)
	}

	if g.Config.Source {
		g.Node.MarkAsSource(g.Config.Clock.Now())
	}

	return nil
}

func (g *Geocast) initStore() {
	if g.Config.CacheSize <= 0 {
		g.logger.WithField("cache_size", g.Config.CacheSize).Warn("Invalid cache size, using default")
		g.Config.CacheSize = config.DefaultCacheSize
	}
	g.Store = store.NewInmemStore(g.Config.CacheSize)
	g.Node.OnDeliver(func(d message.Delivered) {
		g.Store.Add(d)
	})
}

func (g *Geocast) initService() {
	if g.Config.NoService {
		return
	}

	g.Service = service.NewService(g.Config.ServiceAddr,
		g.Node,
		g.Store,
		g.Config.Budget,
		g.Config.SpreadingTime,
		g.logger.WithField("component", "service"))
}

// Start brings the device online and starts the HTTP service.
func (g *Geocast) Start() error {
	if g.Service != nil {
		go g.Service.Serve()
	}

	return g.Node.SetOnlineStatus(true)
}

// Shutdown takes the device offline.
func (g *Geocast) Shutdown() error {
	return g.Node.SetOnlineStatus(false)
}

// Run starts the device and blocks until SIGINT or SIGTERM.
func (g *Geocast) Run() error {
	if err := g.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	sig := <-sigCh
	g.logger.WithField("signal", sig).Info("Shutting down")

	return g.Shutdown()
}

// Keygen creates a new key in datadir. It fails if a key already exists.
func Keygen(datadir string) (*ecdsa.PrivateKey, error) {
	c := config.NewDefaultConfig()
	c.DataDir = datadir

	keyfile := keys.NewSimpleKeyfile(c.Keyfile())

	if _, err := keyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("Another key already lives under %s", datadir)
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keyfile.WriteKey(key); err != nil {
		return nil, err
	}

	return key, nil
}
