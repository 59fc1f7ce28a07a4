package mobile

import (
	"encoding/json"

	"github.com/mosaicnetworks/geocast/src/message"
	"github.com/sirupsen/logrus"
)

/*
This type is not exported
*/

// mobileApp relays deliveries to the handlers of the mobile application.
type mobileApp struct {
	deliveryHandler  DeliveryHandler
	exceptionHandler ExceptionHandler
	logger           *logrus.Entry
}

func newMobileApp(deliveryHandler DeliveryHandler,
	exceptionHandler ExceptionHandler,
	logger *logrus.Entry) *mobileApp {
	mobileApp := &mobileApp{
		deliveryHandler:  deliveryHandler,
		exceptionHandler: exceptionHandler,
		logger:           logger,
	}
	return mobileApp
}

// onDeliver encodes the delivered message with JSON to pass it to the mobile
// application.
func (m *mobileApp) onDeliver(d message.Delivered) {
	raw, err := json.Marshal(d)
	if err != nil {
		m.logger.WithError(err).Debug("mobileApp error marshalling delivered message")
		m.exceptionHandler.OnException(err.Error())
		return
	}

	m.deliveryHandler.OnDeliver(string(raw))
}
