package node

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/geocast/src/common"
	"github.com/mosaicnetworks/geocast/src/gradient"
	"github.com/sirupsen/logrus"
)

// Config contains the configuration of a Node.
type Config struct {
	// RoundPeriod is the period of the round loop. It is also the window
	// within which a device must have been heard from to count as a
	// neighbour.
	RoundPeriod time.Duration `mapstructure:"round-period"`

	// Horizon is the distance, in meters, beyond which gradient values are
	// dropped.
	Horizon float64 `mapstructure:"horizon"`

	// AutoRelay lets relays forward received messages without waiting for the
	// send trigger.
	AutoRelay bool `mapstructure:"auto-relay"`

	// Moniker is a friendly name reported in stats.
	Moniker string `mapstructure:"moniker"`

	// Clock drives the round loop and timestamps inbound traffic.
	Clock clock.Clock

	Logger *logrus.Logger
}

// NewConfig ...
func NewConfig(roundPeriod time.Duration,
	horizon float64,
	autoRelay bool,
	moniker string,
	clk clock.Clock,
	logger *logrus.Logger) *Config {

	return &Config{
		RoundPeriod: roundPeriod,
		Horizon:     horizon,
		AutoRelay:   autoRelay,
		Moniker:     moniker,
		Clock:       clk,
		Logger:      logger,
	}
}

// DefaultConfig returns a Config with a one second round period and the wall
// clock.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		RoundPeriod: time.Second,
		Horizon:     gradient.DefaultHorizon,
		AutoRelay:   true,
		Clock:       clock.New(),
		Logger:      logger,
	}
}

// TestConfig returns a default Config driven by clk and logging to t.
func TestConfig(t testing.TB, clk clock.Clock) *Config {
	config := DefaultConfig()
	config.Clock = clk
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
