package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/geocast/src/common"
	"github.com/mosaicnetworks/geocast/src/geo"
	"github.com/mosaicnetworks/geocast/src/gradient"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the device's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultCertFile is the default name of the file containing the TLS
	// certificate of the broker.
	DefaultCertFile = "cert.pem"

	// DefaultCertKeyFile is the default name of the file containing the TLS
	// key of the broker.
	DefaultCertKeyFile = "key.pem"
)

// Transport backends.
const (
	BackendWAMP  = "wamp"
	BackendInmem = "inmem"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultRoundPeriod      = time.Second
	DefaultHorizon          = gradient.DefaultHorizon
	DefaultAutoRelay        = true
	DefaultBackend          = BackendWAMP
	DefaultBrokerURL        = "ws://127.0.0.1:2443"
	DefaultBrokerListen     = "127.0.0.1:2443"
	DefaultRealm            = "geocast"
	DefaultTopicPrefix      = "geocast"
	DefaultBrokerSkipVerify = false
	DefaultTimeout          = 5 * time.Second
	DefaultCacheSize        = 1000
	DefaultBudget           = 2000.0
	DefaultSpreadingTime    = 5 * time.Second
)

// Config contains all the configuration properties of a geocast device.
type Config struct {
	// DataDir is the top-level directory containing geocast configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are registered
	// with the DefaultServerMux of the http package.
	ServiceAddr string `mapstructure:"service-listen"`

	// Moniker defines the friendly name of this device
	Moniker string `mapstructure:"moniker"`

	// DeviceID overrides the DeviceId derived from the device key.
	DeviceID string `mapstructure:"id"`

	// Location is the initial location of the device, "lat,lon[,alt]". The
	// device is read-only until it has a location.
	Location string `mapstructure:"location"`

	// Source makes the device a gradient source from the start.
	Source bool `mapstructure:"source"`

	// RoundPeriod is the period of the round loop, and the presence window of
	// neighbours.
	RoundPeriod time.Duration `mapstructure:"round-period"`

	// Horizon is the distance in meters beyond which gradient values are
	// dropped.
	Horizon float64 `mapstructure:"horizon"`

	// AutoRelay lets relays forward received messages without waiting for the
	// send trigger.
	AutoRelay bool `mapstructure:"auto-relay"`

	// Backend selects the transport: "wamp" or "inmem". The in-memory backend
	// only reaches devices in the same process.
	Backend string `mapstructure:"backend"`

	// BrokerURL is the ws:// or wss:// URL of the WAMP router.
	BrokerURL string `mapstructure:"broker-url"`

	// BrokerListen is the address:port the broker command listens on.
	BrokerListen string `mapstructure:"broker-listen"`

	// Realm is the WAMP realm. Devices only hear devices in the same realm.
	Realm string `mapstructure:"realm"`

	// TopicPrefix is prepended to every WAMP topic.
	TopicPrefix string `mapstructure:"prefix"`

	// BrokerSkipVerify controls whether the client verifies the broker's
	// certificate chain and host name. This should be used only for testing.
	BrokerSkipVerify bool `mapstructure:"broker-skip-verify"`

	// Timeout is the response timeout of the WAMP client.
	Timeout time.Duration `mapstructure:"timeout"`

	// CacheSize is the number of delivered messages kept by the message store.
	CacheSize int `mapstructure:"cache-size"`

	// Budget and SpreadingTime are the defaults of messages submitted without
	// them.
	Budget        float64       `mapstructure:"budget"`
	SpreadingTime time.Duration `mapstructure:"spreading-time"`

	// Key is the private key of the device.
	Key *ecdsa.PrivateKey

	// Clock drives the round loop. Defaults to the wall clock.
	Clock clock.Clock

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		ServiceAddr:      DefaultServiceAddr,
		RoundPeriod:      DefaultRoundPeriod,
		Horizon:          DefaultHorizon,
		AutoRelay:        DefaultAutoRelay,
		Backend:          DefaultBackend,
		BrokerURL:        DefaultBrokerURL,
		BrokerListen:     DefaultBrokerListen,
		Realm:            DefaultRealm,
		TopicPrefix:      DefaultTopicPrefix,
		BrokerSkipVerify: DefaultBrokerSkipVerify,
		Timeout:          DefaultTimeout,
		CacheSize:        DefaultCacheSize,
		Budget:           DefaultBudget,
		SpreadingTime:    DefaultSpreadingTime,
		Clock:            clock.New(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// CertFile returns the full path of the file containing the broker's TLS
// certificate.
func (c *Config) CertFile() string {
	return filepath.Join(c.DataDir, DefaultCertFile)
}

// CertKeyFile returns the full path of the file containing the broker's TLS
// key.
func (c *Config) CertKeyFile() string {
	return filepath.Join(c.DataDir, DefaultCertKeyFile)
}

// GeoLocation parses Location. It returns nil when no location is set.
func (c *Config) GeoLocation() (*geo.GeoPoint, error) {
	return ParseLocation(c.Location)
}

// ParseLocation parses "lat,lon[,alt]" into a GeoPoint. An empty string
// yields nil.
func ParseLocation(s string) (*geo.GeoPoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("location %q should be lat,lon[,alt]", s)
	}

	values := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("location %q: %v", s, err)
		}
		values[i] = v
	}

	if values[0] < -90 || values[0] > 90 {
		return nil, fmt.Errorf("latitude %v out of range", values[0])
	}
	if values[1] < -180 || values[1] > 180 {
		return nil, fmt.Errorf("longitude %v out of range", values[1])
	}

	return &geo.GeoPoint{
		Latitude:  values[0],
		Longitude: values[1],
		Altitude:  values[2],
	}, nil
}

// Logger returns a formatted logrus Entry, with prefix set to "geocast".
func (c *Config) Logger() *logrus.Entry {
	return c.BaseLogger().WithField("prefix", "geocast")
}

// BaseLogger returns the underlying logrus Logger, creating it if needed.
func (c *Config) BaseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger
}

// DefaultDataDir return the default directory name for top-level geocast
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Geocast")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Geocast")
		} else {
			return filepath.Join(home, ".geocast")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
