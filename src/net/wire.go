package net

import (
	"fmt"

	"github.com/mosaicnetworks/geocast/src/geo"
	"github.com/mosaicnetworks/geocast/src/message"
)

// Datum is the value a device publishes for an aggregate key in a given round.
// Values maps DeviceIds to numbers; for the gradient key, it maps each known
// source to the device's distance from it.
type Datum struct {
	From     string              `json:"from"`
	Key      string              `json:"key"`
	Position *geo.CartesianPoint `json:"position,omitempty"`
	Values   map[string]float64  `json:"values"`
}

// Copy returns a deep copy of the Datum.
func (d *Datum) Copy() Datum {
	c := Datum{
		From:   d.From,
		Key:    d.Key,
		Values: make(map[string]float64, len(d.Values)),
	}
	if d.Position != nil {
		pos := *d.Position
		c.Position = &pos
	}
	for k, v := range d.Values {
		c.Values[k] = v
	}
	return c
}

func (d *Datum) validate() error {
	if d.From == "" {
		return fmt.Errorf("datum has no sender")
	}
	if d.Key == "" {
		return fmt.Errorf("datum from %s has no key", d.From)
	}
	return nil
}

// Envelope carries a Message from one device to its neighbours, along with the
// sender's position and its own distance from the origin of the message. The
// receiver uses both to compute its own distance; nothing in the Envelope is
// taken as the receiver's distance directly.
type Envelope struct {
	Message        message.Message    `json:"message"`
	SenderID       string             `json:"sender"`
	SenderPosition geo.CartesianPoint `json:"position"`
	SenderGradient float64            `json:"gradient"`
}

// Copy returns a copy of the Envelope. Messages are immutable values, so a
// shallow copy is enough.
func (e *Envelope) Copy() *Envelope {
	c := *e
	return &c
}

func (e *Envelope) validate() error {
	if e.SenderID == "" {
		return fmt.Errorf("envelope has no sender")
	}
	if e.Message.ID == "" {
		return fmt.Errorf("envelope from %s has no message ID", e.SenderID)
	}
	if e.Message.OriginID == "" {
		return fmt.Errorf("message %s has no origin", e.Message.ID)
	}
	if e.SenderGradient < 0 {
		return fmt.Errorf("envelope from %s has a negative gradient", e.SenderID)
	}
	return nil
}
