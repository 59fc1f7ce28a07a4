package commands

import (
	"github.com/mosaicnetworks/geocast/src/geocast"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a geocast device
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run device",
		PreRunE: loadConfig,
		RunE:    runGeocast,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runGeocast(cmd *cobra.Command, args []string) error {
	engine := geocast.NewGeocast(&_config.Geocast)

	if err := engine.Init(); err != nil {
		_config.Geocast.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	return engine.Run()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	addCommonFlags(cmd)

	cmd.Flags().String("moniker", _config.Geocast.Moniker, "Optional name")
	cmd.Flags().String("id", _config.Geocast.DeviceID, "Device id. Derived from the key in datadir when empty")

	// Device
	cmd.Flags().String("location", _config.Geocast.Location, "Initial location lat,lon[,alt]")
	cmd.Flags().Bool("source", _config.Geocast.Source, "Start as a gradient source")
	cmd.Flags().Duration("round-period", _config.Geocast.RoundPeriod, "Time between rounds")
	cmd.Flags().Float64("horizon", _config.Geocast.Horizon, "Distance in meters beyond which gradients are dropped")
	cmd.Flags().Bool("auto-relay", _config.Geocast.AutoRelay, "Forward received messages without waiting for the send trigger")

	// Network
	cmd.Flags().String("backend", _config.Geocast.Backend, "Transport backend (wamp, inmem)")
	cmd.Flags().StringP("broker-url", "b", _config.Geocast.BrokerURL, "URL of the WAMP broker")
	cmd.Flags().String("prefix", _config.Geocast.TopicPrefix, "Prefix of the WAMP topics")
	cmd.Flags().Bool("broker-skip-verify", _config.Geocast.BrokerSkipVerify, "Skip verification of the broker certificate")
	cmd.Flags().DurationP("timeout", "t", _config.Geocast.Timeout, "WAMP response timeout")

	// Service
	cmd.Flags().Bool("no-service", _config.Geocast.NoService, "Disable the HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Geocast.ServiceAddr, "Listen IP:Port for HTTP service")

	// Messages
	cmd.Flags().Int("cache-size", _config.Geocast.CacheSize, "Number of delivered messages kept in memory")
	cmd.Flags().Float64("budget", _config.Geocast.Budget, "Default distance budget in meters")
	cmd.Flags().Duration("spreading-time", _config.Geocast.SpreadingTime, "Default spreading time")
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Geocast.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Geocast.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file")
	cmd.Flags().String("realm", _config.Geocast.Realm, "WAMP realm")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	if _config.LogFile != "" {
		addFileHook(_config.Geocast.BaseLogger(), _config.LogFile)
	}

	logFields := logrus.Fields{
		"geocast.DataDir":       _config.Geocast.DataDir,
		"geocast.LogLevel":      _config.Geocast.LogLevel,
		"geocast.Moniker":       _config.Geocast.Moniker,
		"geocast.DeviceID":      _config.Geocast.DeviceID,
		"geocast.Location":      _config.Geocast.Location,
		"geocast.Source":        _config.Geocast.Source,
		"geocast.RoundPeriod":   _config.Geocast.RoundPeriod,
		"geocast.Horizon":       _config.Geocast.Horizon,
		"geocast.AutoRelay":     _config.Geocast.AutoRelay,
		"geocast.Backend":       _config.Geocast.Backend,
		"geocast.BrokerURL":     _config.Geocast.BrokerURL,
		"geocast.Realm":         _config.Geocast.Realm,
		"geocast.TopicPrefix":   _config.Geocast.TopicPrefix,
		"geocast.Timeout":       _config.Geocast.Timeout,
		"geocast.NoService":     _config.Geocast.NoService,
		"geocast.ServiceAddr":   _config.Geocast.ServiceAddr,
		"geocast.CacheSize":     _config.Geocast.CacheSize,
		"geocast.Budget":        _config.Geocast.Budget,
		"geocast.SpreadingTime": _config.Geocast.SpreadingTime,
		"LogFile":               _config.LogFile,
	}

	_config.Geocast.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/geocast.toml (.json, .yaml also work)
	viper.SetConfigName("geocast")               // name of config file (without extension)
	viper.AddConfigPath(_config.Geocast.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Geocast.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Geocast.Logger().Debugf("No config file found in: %s", _config.Geocast.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// addFileHook copies every log entry to path.
func addFileHook(logger *logrus.Logger, path string) {
	pathMap := lfshook.PathMap{}
	for _, level := range logrus.AllLevels {
		pathMap[level] = path
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}
