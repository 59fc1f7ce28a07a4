// Package message defines the text messages exchanged by geocast devices.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a short text with a distance budget and a spreading time. It is
// immutable once created; relays forward it unchanged.
type Message struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	SenderID string `json:"sender"`
	OriginID string `json:"origin"`

	CreatedAt time.Time `json:"created_at"`

	// DistanceBudget is the maximum distance from the origin, in meters,
	// within which the message may be delivered and forwarded.
	DistanceBudget float64 `json:"distance_budget"`

	// SpreadingTime is how long after CreatedAt the message may still be
	// forwarded.
	SpreadingTime time.Duration `json:"spreading_time"`
}

// NewMessage creates a Message with a random ID.
func NewMessage(text, senderID, originID string,
	createdAt time.Time,
	distanceBudget float64,
	spreadingTime time.Duration) Message {

	return Message{
		ID:             uuid.New().String(),
		Text:           text,
		SenderID:       senderID,
		OriginID:       originID,
		CreatedAt:      createdAt,
		DistanceBudget: distanceBudget,
		SpreadingTime:  spreadingTime,
	}
}

// Expired reports whether the spreading time has elapsed at now. The cutoff is
// strict: a message is still live at exactly CreatedAt+SpreadingTime.
func (m Message) Expired(now time.Time) bool {
	return now.Sub(m.CreatedAt) > m.SpreadingTime
}

// ExpiresAt ...
func (m Message) ExpiresAt() time.Time {
	return m.CreatedAt.Add(m.SpreadingTime)
}

// String ...
func (m Message) String() string {
	return fmt.Sprintf("%s from %s (budget %.1fm, spreading %s)",
		m.ID, m.OriginID, m.DistanceBudget, m.SpreadingTime)
}

// Delivered is a Message as received by a device. Distance is the receiver's
// own estimate of its distance from the origin at the time of receipt. When
// Located is false the receiver had no position and Distance is zero.
type Delivered struct {
	Message    Message   `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
	Distance   float64   `json:"distance"`
	Located    bool      `json:"located"`
}
