package mobile

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mosaicnetworks/geocast/src/crypto/keys"
	"github.com/mosaicnetworks/geocast/src/geo"
	"github.com/mosaicnetworks/geocast/src/geocast"
	"github.com/sirupsen/logrus"
)

// Node wraps a geocast device behind an API gomobile can bind. Structured
// results are returned as JSON strings.
type Node struct {
	engine           *geocast.Geocast
	exceptionHandler ExceptionHandler
	logger           *logrus.Entry
}

// New initializes Node struct
func New(privKey string,
	deliveryHandler DeliveryHandler,
	exceptionHandler ExceptionHandler,
	config *MobileConfig) *Node {

	geocastConfig := config.toGeocastConfig()

	logger := geocastConfig.Logger()

	logger.WithFields(logrus.Fields{
		"config": fmt.Sprintf("%v", config),
	}).Debug("New Mobile Node")

	//Check private key
	rawKey, err := hex.DecodeString(strings.TrimSpace(privKey))
	if err != nil {
		exceptionHandler.OnException(fmt.Sprintf("Failed to read private key: %s", err))
		return nil
	}

	key, err := keys.ParsePrivateKey(rawKey)
	if err != nil {
		exceptionHandler.OnException(fmt.Sprintf("Failed to read private key: %s", err))
		return nil
	}

	geocastConfig.Key = key

	engine := geocast.NewGeocast(geocastConfig)

	if err := engine.Init(); err != nil {
		exceptionHandler.OnException(fmt.Sprintf("Cannot initialize engine: %s", err))
		return nil
	}

	mobileApp := newMobileApp(deliveryHandler, exceptionHandler, logger)
	engine.Node.OnDeliver(mobileApp.onDeliver)

	return &Node{
		engine:           engine,
		exceptionHandler: exceptionHandler,
		logger:           logger,
	}
}

// ID returns the device id.
func (n *Node) ID() string {
	return n.engine.Node.ID()
}

// SetOnline brings the device online or takes it offline.
func (n *Node) SetOnline(online bool) {
	if err := n.engine.Node.SetOnlineStatus(online); err != nil {
		n.exceptionHandler.OnException(err.Error())
	}
}

// SetLocation sets the location of the device in degrees and meters.
func (n *Node) SetLocation(latitude, longitude, altitude float64) {
	n.engine.Node.SetLocation(&geo.GeoPoint{
		Latitude:  latitude,
		Longitude: longitude,
		Altitude:  altitude,
	})
}

// ClearLocation puts the device in read-only mode.
func (n *Node) ClearLocation() {
	n.engine.Node.SetLocation(nil)
}

// MarkAsSource makes the device a gradient source, starting now on the
// engine clock.
func (n *Node) MarkAsSource() {
	n.engine.Node.MarkAsSource(n.engine.Config.Clock.Now())
}

// ClearSourceStatus stops the device from acting as a gradient source.
func (n *Node) ClearSourceStatus() {
	n.engine.Node.ClearSourceStatus()
}

// Send submits a message and returns its id. Zero budget or spreading time
// use the defaults of the config. Spreading time is in milliseconds.
func (n *Node) Send(text string, budget float64, spreadingTime int) string {
	if budget <= 0 {
		budget = n.engine.Config.Budget
	}

	spreading := time.Duration(spreadingTime) * time.Millisecond
	if spreading <= 0 {
		spreading = n.engine.Config.SpreadingTime
	}

	msg, err := n.engine.Node.SubmitMessage(text, budget, spreading)
	if err != nil {
		n.exceptionHandler.OnException(err.Error())
		return ""
	}

	return msg.ID
}

// GetMessages returns the delivered messages in JSON.
func (n *Node) GetMessages() string {
	return n.toJSON(n.engine.Node.GetCurrentListOfMessages())
}

// GetNeighbors returns the neighbour ids in JSON.
func (n *Node) GetNeighbors() string {
	return n.toJSON(n.engine.Node.Neighbors())
}

// GetStats returns the node stats in JSON.
func (n *Node) GetStats() string {
	return n.toJSON(n.engine.Node.GetStats())
}

func (n *Node) toJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		n.logger.WithError(err).Debug("Encoding JSON")
		return ""
	}
	return string(raw)
}
