// Package network tracks whether the device can currently reach the backend.
package network

import (
	"log/slog"
	"sync"
)

// Monitor is the connectivity signal the offline queue consumes.
type Monitor interface {
	IsOnline() bool
	// OnChange registers fn to be called with the new state on every
	// transition. The returned function unsubscribes and is safe to call
	// more than once.
	OnChange(fn func(online bool)) (unsubscribe func())
}

type listener struct {
	id uint64
	fn func(bool)
}

// Status is a settable Monitor. Probers, the MQTT monitor and mobile hosts
// all report into a Status; everything else only reads from it.
type Status struct {
	mu        sync.Mutex
	online    bool
	listeners []listener
	nextID    uint64
	logger    *slog.Logger
}

// NewStatus creates a Status with the given initial state.
func NewStatus(online bool, logger *slog.Logger) *Status {
	if logger == nil {
		logger = slog.Default()
	}
	return &Status{online: online, logger: logger.With("component", "network")}
}

func (s *Status) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set records the current state. Listeners run only when the state actually
// changes, in subscription order, outside the lock.
func (s *Status) Set(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	fns := make([]func(bool), len(s.listeners))
	for i, l := range s.listeners {
		fns[i] = l.fn
	}
	s.mu.Unlock()

	s.logger.Info("connectivity changed", "online", online)
	for _, fn := range fns {
		fn(online)
	}
}

func (s *Status) OnChange(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}
