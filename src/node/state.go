package node

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/geocast/src/geo"
)

// State captures whether the round loop of a device is running: Offline or
// Online.
type State uint32

const (
	// Offline is the initial state of a node.
	Offline State = iota
	// Online runs the round loop
	Online
)

// String ...
func (s State) String() string {
	switch s {
	case Offline:
		return "Offline"
	case Online:
		return "Online"
	default:
		return "Unknown"
	}
}

// DeviceState is the externally controlled state of a device.
type DeviceState struct {
	Online      bool          `json:"online"`
	IsSource    bool          `json:"is_source"`
	SourceSince *time.Time    `json:"source_since,omitempty"`
	Location    *geo.GeoPoint `json:"location,omitempty"`
}

// WGLIMIT is the maximum number of goroutines that can be launched through
// state.goFunc
const WGLIMIT = 20

type state struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup
func (b *state) goFunc(f func()) {
	tempWgCount := atomic.LoadInt32(&b.wgCount)
	if tempWgCount < WGLIMIT {
		b.wg.Add(1)
		atomic.AddInt32(&b.wgCount, 1)
		go func() {
			defer b.wg.Done()
			defer atomic.AddInt32(&b.wgCount, -1)
			f()
		}()
	}
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
