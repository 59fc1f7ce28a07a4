package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/geocast/src/net/wamp"
	"github.com/spf13/cobra"
)

//NewBrokerCmd returns the command that runs a WAMP router for geocast
//devices
func NewBrokerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "broker",
		Short:   "Run a WAMP broker for the network backend",
		PreRunE: loadConfig,
		RunE:    runBroker,
	}
	AddBrokerFlags(cmd)
	return cmd
}

//AddBrokerFlags adds flags to the Broker command
func AddBrokerFlags(cmd *cobra.Command) {
	addCommonFlags(cmd)

	cmd.Flags().String("broker-listen", _config.Geocast.BrokerListen, "Listen IP:Port for the broker")
}

// runBroker starts the WAMP server and waits for a SIGINT or SIGTERM. It
// serves wss:// when cert.pem and key.pem are present in the datadir.
func runBroker(cmd *cobra.Command, args []string) error {
	logger := _config.Geocast.Logger().WithField("component", "broker")

	certFile, keyFile := "", ""
	if _, err := os.Stat(_config.Geocast.CertFile()); err == nil {
		certFile = _config.Geocast.CertFile()
		keyFile = _config.Geocast.CertKeyFile()
	}

	server, err := wamp.NewServer(_config.Geocast.BrokerListen,
		_config.Geocast.Realm,
		certFile,
		keyFile,
		logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	server.Shutdown()

	return nil
}
