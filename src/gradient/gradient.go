// Package gradient maintains, for one device, the estimated distance from
// that device to every gradient source in the mesh.
//
// The field is recomputed once per round from the values neighbours reported
// on their last round:
//
//	g[self] = 0                                  if the device is a source
//	g[s]    = min over neighbours n of g_n[s] + |self - n|   for every other s
//
// Neighbours that were not heard from within the last round are excluded from
// the minimum. The computation never terminates; it settles within a number
// of rounds proportional to the diameter of the mesh, and downstream decisions
// may be taken on values that have not settled yet. When two neighbours yield
// the same minimum, which one provided it is unspecified.
package gradient

import (
	"sync"

	"github.com/mosaicnetworks/geocast/src/geo"
	"github.com/mosaicnetworks/geocast/src/net"
	"github.com/sirupsen/logrus"
)

const (
	// GradientKey is the aggregate key under which devices publish their
	// field.
	GradientKey = "gradient"

	// DefaultHorizon is the distance, in meters, beyond which gradient values
	// are dropped.
	DefaultHorizon = 50000.0
)

// Reader gives access to the latest Datum each neighbour published for a key.
// It is implemented by net.Mailbox.
type Reader interface {
	Datum(from, key string) (net.Datum, bool)
}

// Field is the gradient of a single device.
type Field struct {
	sync.RWMutex

	id       string
	position *geo.CartesianPoint
	isSource bool

	// once a source stops advertising, the values of the remaining devices
	// keep climbing off each other. Dropping anything beyond the horizon
	// bounds that growth.
	horizon float64

	values map[string]float64

	logger *logrus.Entry
}

// NewField creates an empty Field for the device id. A horizon <= 0 selects
// DefaultHorizon.
func NewField(id string, horizon float64, logger *logrus.Entry) *Field {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Field{
		id:      id,
		horizon: horizon,
		values:  make(map[string]float64),
		logger:  logger,
	}
}

// SetPosition sets the position of the device. A nil position clears the
// field; the device then publishes nothing until it is located again.
func (f *Field) SetPosition(pos *geo.CartesianPoint) {
	f.Lock()
	defer f.Unlock()

	if pos == nil {
		f.position = nil
		f.values = make(map[string]float64)
		return
	}

	p := *pos
	f.position = &p
}

// SetSource sets whether the device is a gradient source. A source holds a
// value of 0 for itself from the next Update on.
func (f *Field) SetSource(isSource bool) {
	f.Lock()
	defer f.Unlock()

	f.isSource = isSource
}

// IsSource ...
func (f *Field) IsSource() bool {
	f.RLock()
	defer f.RUnlock()

	return f.isSource
}

// Update recomputes the field from the values the given neighbours last
// published. Neighbours without a published datum or a position are ignored.
func (f *Field) Update(neighbors []string, reader Reader) {
	f.Lock()
	defer f.Unlock()

	next := make(map[string]float64)

	if f.position == nil {
		f.values = next
		return
	}

	if f.isSource {
		next[f.id] = 0
	}

	for _, n := range neighbors {
		if n == f.id {
			continue
		}

		d, ok := reader.Datum(n, GradientKey)
		if !ok || d.Position == nil {
			continue
		}

		edge := geo.Distance(*f.position, *d.Position)

		for source, g := range d.Values {
			if source == f.id {
				continue
			}

			candidate := g + edge
			if candidate > f.horizon {
				continue
			}

			if cur, ok := next[source]; !ok || candidate < cur {
				next[source] = candidate
			}
		}
	}

	f.values = next
}

// Value returns the estimated distance to a source, if one is known.
func (f *Field) Value(source string) (float64, bool) {
	f.RLock()
	defer f.RUnlock()

	v, ok := f.values[source]
	return v, ok
}

// Values returns a copy of the whole field.
func (f *Field) Values() map[string]float64 {
	f.RLock()
	defer f.RUnlock()

	res := make(map[string]float64, len(f.values))
	for k, v := range f.values {
		res[k] = v
	}

	return res
}

// Datum returns the value to publish for this round, or nil when the device
// has no position.
func (f *Field) Datum() *net.Datum {
	f.RLock()
	defer f.RUnlock()

	if f.position == nil {
		return nil
	}

	pos := *f.position
	values := make(map[string]float64, len(f.values))
	for k, v := range f.values {
		values[k] = v
	}

	return &net.Datum{
		From:     f.id,
		Key:      GradientKey,
		Position: &pos,
		Values:   values,
	}
}

// Accepts is the admission predicate: a device at distance fromSource from
// the origin may pass a message to a neighbour toNeighbor meters away iff the
// total stays within maxDistance. The bound is inclusive.
func Accepts(fromSource, toNeighbor, maxDistance float64) bool {
	return fromSource+toNeighbor <= maxDistance
}
