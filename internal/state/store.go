// Package state holds the in-memory lists the UI renders from. Queued
// creates show up here under a temporary id until the server assigns the
// real one, at which point the item is replaced in place.
package state

import (
	"sync"
	"time"
)

// Item is a normalized confession as the feed displays it.
type Item struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Content      string    `json:"content"`
	IsAnonymous  bool      `json:"isAnonymous"`
	MediaURL     string    `json:"mediaUrl,omitempty"`
	MediaType    string    `json:"mediaType,omitempty"`
	LikesCount   int       `json:"likesCount"`
	RepliesCount int       `json:"repliesCount"`
	CreatedAt    time.Time `json:"createdAt"`
	// Pending marks an optimistic item that has not reached the server.
	Pending bool `json:"pending,omitempty"`
}

// Snapshot is a copy of a store's contents.
type Snapshot struct {
	Items       []Item
	LastUpdated time.Time
}

// Store is a list the dispatcher may rewrite after a create succeeds.
type Store interface {
	GetState() Snapshot
	SetState(items []Item)
}

// MemoryStore is a mutex-guarded Store. The zero value is ready to use.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewMemoryStore(items ...Item) *MemoryStore {
	s := &MemoryStore{}
	if len(items) > 0 {
		s.SetState(items)
	}
	return s
}

func (s *MemoryStore) GetState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Items = cloneItems(s.snapshot.Items)
	return snap
}

func (s *MemoryStore) SetState(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Items = cloneItems(items)
	s.snapshot.LastUpdated = time.Now()
}

func cloneItems(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}
	dup := make([]Item, len(items))
	copy(dup, items)
	return dup
}

// ReplaceByID swaps the item whose ID is id for item, keeping its position.
// It reports whether a match was found.
func ReplaceByID(s Store, id string, item Item) bool {
	items := s.GetState().Items
	for i := range items {
		if items[i].ID == id {
			items[i] = item
			s.SetState(items)
			return true
		}
	}
	return false
}
