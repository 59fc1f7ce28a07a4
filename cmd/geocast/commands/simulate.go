package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mosaicnetworks/geocast/src/config"
	"github.com/mosaicnetworks/geocast/src/geo"
	"github.com/mosaicnetworks/geocast/src/geocast"
	"github.com/mosaicnetworks/geocast/src/message"
	"github.com/mosaicnetworks/geocast/src/net"
	"github.com/spf13/cobra"
)

var (
	simDevices int
	simSpacing float64
	simRounds  int
	simText    string
	simPeriod  = 100 * time.Millisecond
)

//NewSimulateCmd returns the command that runs a line of in-memory devices
//and reports which of them received a message sent by the first one
func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Simulate a line of devices in memory",
		PreRunE: loadConfig,
		RunE:    runSimulate,
	}
	AddSimulateFlags(cmd)
	return cmd
}

//AddSimulateFlags adds flags to the Simulate command
func AddSimulateFlags(cmd *cobra.Command) {
	cmd.Flags().String("log", "warn", "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file")

	cmd.Flags().IntVarP(&simDevices, "devices", "n", 5, "Number of devices")
	cmd.Flags().Float64Var(&simSpacing, "spacing", 100, "Distance in meters between consecutive devices")
	cmd.Flags().IntVar(&simRounds, "rounds", 20, "Number of rounds to run")
	cmd.Flags().StringVar(&simText, "text", "hello", "Text of the message")
	cmd.Flags().DurationVar(&simPeriod, "round-period", simPeriod, "Time between rounds")
	cmd.Flags().Float64("budget", _config.Geocast.Budget, "Distance budget in meters")
	cmd.Flags().Duration("spreading-time", _config.Geocast.SpreadingTime, "Spreading time")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simDevices < 2 {
		return fmt.Errorf("simulation needs at least 2 devices")
	}

	registry := net.NewInmemRegistry()
	base := geo.ToCartesian(geo.GeoPoint{Latitude: 45, Longitude: 7})

	devices := make([]*geocast.Geocast, simDevices)
	locations := make([]geo.GeoPoint, simDevices)

	for i := 0; i < simDevices; i++ {
		conf := config.NewDefaultConfig()
		conf.LogLevel = _config.Geocast.LogLevel
		conf.Backend = config.BackendInmem
		conf.DeviceID = fmt.Sprintf("device-%d", i)
		conf.Moniker = conf.DeviceID
		conf.NoService = true
		conf.RoundPeriod = simPeriod
		conf.CacheSize = _config.Geocast.CacheSize

		if _config.LogFile != "" {
			addFileHook(conf.BaseLogger(), _config.LogFile)
		}

		g := geocast.NewGeocast(conf)
		g.Registry = registry

		if err := g.Init(); err != nil {
			return err
		}

		locations[i] = geo.ToGeo(base.Add(float64(i)*simSpacing, 0, 0))
		g.Node.SetLocation(&locations[i])

		devices[i] = g
	}

	devices[0].Node.MarkAsSource(time.Now())

	for _, g := range devices {
		if err := g.Start(); err != nil {
			return err
		}
	}

	// let the gradient settle before sending
	time.Sleep(time.Duration(simDevices) * simPeriod)

	msg, err := devices[0].Node.SubmitMessage(simText,
		_config.Geocast.Budget,
		_config.Geocast.SpreadingTime)
	if err != nil {
		return err
	}

	time.Sleep(time.Duration(simRounds) * simPeriod)

	for _, g := range devices {
		if err := g.Shutdown(); err != nil {
			return err
		}
	}

	fmt.Printf("Message %s, budget %.1fm\n\n", msg.ID, msg.DistanceBudget)

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tDISTANCE\tDELIVERED\tESTIMATE")

	for i, g := range devices {
		distance := geo.GeoDistance(locations[0], locations[i])

		if i == 0 {
			fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\n", g.Node.ID(), distance, "origin", "-")
			continue
		}

		d, ok := findDelivered(g.Store.All(), msg.ID)
		if !ok {
			fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\n", g.Node.ID(), distance, "no", "-")
			continue
		}

		fmt.Fprintf(w, "%s\t%.1f\t%s\t%.1f\n", g.Node.ID(), distance, "yes", d.Distance)
	}

	return w.Flush()
}

func findDelivered(delivered []message.Delivered, id string) (message.Delivered, bool) {
	for _, d := range delivered {
		if d.Message.ID == id {
			return d, true
		}
	}
	return message.Delivered{}, false
}
