// Package queue holds the durable FIFO of user actions that could not be
// sent to the backend right away.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clawinfra/confessly/internal/kvstore"
)

const (
	DefaultMaxSize    = 100
	DefaultMaxRetries = 3
	DefaultStorageKey = "offline_queue"
)

// Config sizes the store.
type Config struct {
	MaxSize           int
	DefaultMaxRetries int
	StorageKey        string
}

// Store is the single owner of the queued actions, in memory and on disk.
// Every structural change is written through to storage; a failed write is
// logged and the in-memory queue stays authoritative.
type Store struct {
	mu      sync.Mutex
	actions []QueuedAction
	last    time.Time
	loaded  bool

	storage kvstore.Storage
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates an empty store backed by storage. Call Load at startup
// to pick up actions persisted by a previous run; the first Enqueue or
// Persist loads them too, so storage is never overwritten unread.
func NewStore(storage kvstore.Storage, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = DefaultMaxRetries
	}
	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}
	return &Store{
		storage: storage,
		cfg:     cfg,
		logger:  logger.With("component", "queue"),
		now:     time.Now,
	}
}

// EnqueueOption customises a single Enqueue call.
type EnqueueOption func(*QueuedAction)

// WithMaxRetries overrides the store's default retry ceiling.
func WithMaxRetries(n int) EnqueueOption {
	return func(a *QueuedAction) {
		if n > 0 {
			a.MaxRetries = n
		}
	}
}

// WithReconciliation attaches placeholder-swap metadata for create actions.
func WithReconciliation(store string, metadata map[string]any) EnqueueOption {
	return func(a *QueuedAction) {
		a.Reconciliation = &Reconciliation{Store: store, Metadata: metadata}
	}
}

// Enqueue appends a new action and returns its id. When the queue is over
// capacity the oldest actions are dropped. Enqueue never fails; p must not
// be nil.
func (s *Store) Enqueue(ctx context.Context, p Payload, opts ...EnqueueOption) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.loadLocked(ctx)
	}

	now := s.now().UTC()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now

	a := QueuedAction{
		ID:         newActionID(now),
		Type:       p.ActionType(),
		Payload:    p,
		EnqueuedAt: now,
		MaxRetries: s.cfg.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&a)
	}

	s.actions = append(s.actions, a)
	if over := len(s.actions) - s.cfg.MaxSize; over > 0 {
		dropped := s.actions[:over]
		for _, d := range dropped {
			s.logger.Warn("queue full, dropping oldest action",
				"action_id", d.ID,
				"type", d.Type,
				"max_size", s.cfg.MaxSize)
		}
		s.actions = append([]QueuedAction(nil), s.actions[over:]...)
	}

	s.logger.Debug("action enqueued", "action_id", a.ID, "type", a.Type, "size", len(s.actions))
	s.persistLocked(ctx)
	return a.ID
}

// Size returns the number of queued actions.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Snapshot returns a deep copy of the queue in FIFO order.
func (s *Store) Snapshot() []QueuedAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueuedAction, len(s.actions))
	for i, a := range s.actions {
		out[i] = a.Clone()
	}
	return out
}

// Get returns a copy of the action with the given id.
func (s *Store) Get(id string) (QueuedAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.actions[i].Clone(), true
	}
	return QueuedAction{}, false
}

// Remove deletes the action with id. It reports whether anything was
// removed; removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.actions = append(s.actions[:i:i], s.actions[i+1:]...)
	s.persistLocked(ctx)
	return true
}

// IncrementRetry bumps the retry counter of id and returns the new value.
// ok is false when id is not queued. Callers remove the action once the
// count reaches its MaxRetries.
func (s *Store) IncrementRetry(ctx context.Context, id string) (count int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return 0, false
	}
	s.actions[i].RetryCount++
	s.persistLocked(ctx)
	return s.actions[i].RetryCount, true
}

// Clear drops every queued action.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = nil
	s.loaded = true
	s.persistLocked(ctx)
}

// Persist writes the current queue to storage.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.loadLocked(ctx)
	}
	return s.writeLocked(ctx)
}

// Load reads the persisted queue. Only the first call does anything, and
// an Enqueue that ran earlier has already loaded it, so nothing queued in
// memory is discarded. A missing, unreadable or corrupt blob yields an
// empty queue; single entries that cannot be decoded are skipped.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.loadLocked(ctx)
}

// Loaded reports whether the persisted queue has been read.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Store) loadLocked(ctx context.Context) {
	s.loaded = true

	raw, err := s.storage.GetItem(ctx, s.cfg.StorageKey)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Warn("failed to read persisted queue, starting empty", "error", err)
		}
		return
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn("persisted queue is corrupt, starting empty", "error", err)
		return
	}

	for i, e := range entries {
		var a QueuedAction
		if err := json.Unmarshal(e, &a); err != nil {
			s.logger.Warn("skipping undecodable queued action", "index", i, "error", err)
			continue
		}
		if a.MaxRetries <= 0 {
			a.MaxRetries = s.cfg.DefaultMaxRetries
		}
		s.actions = append(s.actions, a)
		if a.EnqueuedAt.After(s.last) {
			s.last = a.EnqueuedAt
		}
	}
	if over := len(s.actions) - s.cfg.MaxSize; over > 0 {
		s.actions = append([]QueuedAction(nil), s.actions[over:]...)
	}

	s.logger.Info("offline queue loaded", "size", len(s.actions))
}

func (s *Store) indexLocked(id string) int {
	for i := range s.actions {
		if s.actions[i].ID == id {
			return i
		}
	}
	return -1
}

// persistLocked is the best-effort write used by mutating calls.
func (s *Store) persistLocked(ctx context.Context) {
	if err := s.writeLocked(ctx); err != nil {
		s.logger.Warn("failed to persist offline queue", "error", err, "size", len(s.actions))
	}
}

func (s *Store) writeLocked(ctx context.Context) error {
	if len(s.actions) == 0 {
		if err := s.storage.RemoveItem(ctx, s.cfg.StorageKey); err != nil {
			return fmt.Errorf("remove queue: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(s.actions)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	if err := s.storage.SetItem(ctx, s.cfg.StorageKey, string(data)); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

// newActionID is the enqueue timestamp in milliseconds plus a short random
// suffix.
func newActionID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s", t.UnixMilli(), suffix)
}
