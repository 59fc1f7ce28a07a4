package mobile

import (
	"time"

	"github.com/mosaicnetworks/geocast/src/config"
)

// MobileConfig only uses types gomobile can bind.
type MobileConfig struct {
	RoundPeriod   int     //round period in milliseconds
	Backend       string  //wamp or inmem
	BrokerURL     string  //URL of the WAMP broker
	Realm         string  //WAMP realm
	SkipVerify    bool    //do not verify the broker certificate
	CacheSize     int     //Number of delivered messages kept in memory
	Budget        float64 //default distance budget in meters
	SpreadingTime int     //default spreading time in milliseconds
	LogLevel      string
}

func NewMobileConfig(roundPeriod int,
	backend string,
	brokerURL string,
	realm string,
	skipVerify bool,
	cacheSize int,
	budget float64,
	spreadingTime int,
	logLevel string) *MobileConfig {

	return &MobileConfig{
		RoundPeriod:   roundPeriod,
		Backend:       backend,
		BrokerURL:     brokerURL,
		Realm:         realm,
		SkipVerify:    skipVerify,
		CacheSize:     cacheSize,
		Budget:        budget,
		SpreadingTime: spreadingTime,
		LogLevel:      logLevel,
	}
}

func DefaultMobileConfig() *MobileConfig {
	return &MobileConfig{
		RoundPeriod:   int(config.DefaultRoundPeriod / time.Millisecond),
		Backend:       config.DefaultBackend,
		BrokerURL:     config.DefaultBrokerURL,
		Realm:         config.DefaultRealm,
		SkipVerify:    config.DefaultBrokerSkipVerify,
		CacheSize:     config.DefaultCacheSize,
		Budget:        config.DefaultBudget,
		SpreadingTime: int(config.DefaultSpreadingTime / time.Millisecond),
		LogLevel:      config.DefaultLogLevel,
	}
}

func (c *MobileConfig) toGeocastConfig() *config.Config {
	conf := config.NewDefaultConfig()

	conf.RoundPeriod = time.Duration(c.RoundPeriod) * time.Millisecond
	conf.Backend = c.Backend
	conf.BrokerURL = c.BrokerURL
	conf.Realm = c.Realm
	conf.BrokerSkipVerify = c.SkipVerify
	conf.CacheSize = c.CacheSize
	conf.Budget = c.Budget
	conf.SpreadingTime = time.Duration(c.SpreadingTime) * time.Millisecond
	conf.LogLevel = c.LogLevel
	conf.NoService = true

	return conf
}
