// Package store keeps the messages delivered to a device for display.
//
// It is fed by the delivery handlers of a node and read by the HTTP service.
// Nothing is persisted across restarts.
package store

import (
	"sync"

	"github.com/mosaicnetworks/geocast/src/common"
	"github.com/mosaicnetworks/geocast/src/message"
)

// Store ...
type Store interface {
	Add(d message.Delivered) int
	Get(index int) (message.Delivered, error)
	GetByID(id string) (message.Delivered, error)
	Since(skipIndex int) ([]message.Delivered, error)
	LastIndex() int
}

// InmemStore is a bounded in-memory Store. Each delivered message gets an
// increasing index; only the most recent messages are kept, older ones are
// rolled out.
type InmemStore struct {
	sync.RWMutex
	size  int
	index *common.RollingIndex
	byID  map[string]int
}

// NewInmemStore creates an InmemStore keeping at least size messages.
func NewInmemStore(size int) *InmemStore {
	return &InmemStore{
		size:  size,
		index: common.NewRollingIndex("Delivered", size),
		byID:  make(map[string]int),
	}
}

// Add appends a delivered message and returns its index. A message already in
// the store is not added twice.
func (s *InmemStore) Add(d message.Delivered) int {
	s.Lock()
	defer s.Unlock()

	if i, ok := s.byID[d.Message.ID]; ok {
		return i
	}

	i := s.index.Append(d)
	s.byID[d.Message.ID] = i

	if len(s.byID) > 2*s.size {
		s.pruneIDs()
	}

	return i
}

// pruneIDs forgets the IDs of messages that were rolled out.
func (s *InmemStore) pruneIDs() {
	window, last := s.index.GetLastWindow()
	oldest := last - len(window) + 1
	for id, i := range s.byID {
		if i < oldest {
			delete(s.byID, id)
		}
	}
}

// Get returns the message at index.
func (s *InmemStore) Get(index int) (message.Delivered, error) {
	s.RLock()
	defer s.RUnlock()

	item, err := s.index.GetItem(index)
	if err != nil {
		return message.Delivered{}, err
	}

	return item.(message.Delivered), nil
}

// GetByID returns a message by message ID.
func (s *InmemStore) GetByID(id string) (message.Delivered, error) {
	s.RLock()
	i, ok := s.byID[id]
	s.RUnlock()

	if !ok {
		return message.Delivered{}, common.NewStoreErr("Delivered", common.KeyNotFound, id)
	}

	return s.Get(i)
}

// Since returns the messages whose index is greater than skipIndex. Pass -1
// to get everything still in the store.
func (s *InmemStore) Since(skipIndex int) ([]message.Delivered, error) {
	s.RLock()
	defer s.RUnlock()

	// -1 means everything still in the store, whatever was rolled out
	if skipIndex < 0 {
		window, last := s.index.GetLastWindow()
		skipIndex = last - len(window)
	}

	items, err := s.index.Get(skipIndex)
	if err != nil {
		return nil, err
	}

	res := make([]message.Delivered, len(items))
	for i, item := range items {
		res[i] = item.(message.Delivered)
	}

	return res, nil
}

// All returns every message still in the store, oldest first.
func (s *InmemStore) All() []message.Delivered {
	s.RLock()
	defer s.RUnlock()

	window, _ := s.index.GetLastWindow()

	res := make([]message.Delivered, len(window))
	for i, item := range window {
		res[i] = item.(message.Delivered)
	}

	return res
}

// LastIndex returns the index of the last message, or -1.
func (s *InmemStore) LastIndex() int {
	s.RLock()
	defer s.RUnlock()

	return s.index.LastIndex()
}
