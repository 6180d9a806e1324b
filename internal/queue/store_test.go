package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/clawinfra/confessly/internal/kvstore"
)

// failingStorage accepts reads but rejects every write.
type failingStorage struct {
	*kvstore.Memory
	getErr error
}

func (f *failingStorage) GetItem(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.Memory.GetItem(ctx, key)
}

func (f *failingStorage) SetItem(context.Context, string, string) error {
	return errors.New("disk full")
}

func (f *failingStorage) RemoveItem(context.Context, string) error {
	return errors.New("disk full")
}

func newTestStore(t *testing.T, storage kvstore.Storage, cfg Config) *Store {
	t.Helper()
	if storage == nil {
		storage = kvstore.NewMemory()
	}
	return NewStore(storage, cfg, slog.Default())
}

func TestEnqueueAssignsDefaults(t *testing.T) {
	s := newTestStore(t, nil, Config{})
	ctx := context.Background()

	id := s.Enqueue(ctx, LikeConfession{ConfessionID: "c1"})
	if id == "" {
		t.Fatal("expected id")
	}
	a, ok := s.Get(id)
	if !ok {
		t.Fatal("enqueued action not found")
	}
	if a.Type != LikeConfessionType {
		t.Errorf("expected type %s, got %s", LikeConfessionType, a.Type)
	}
	if a.RetryCount != 0 || a.MaxRetries != DefaultMaxRetries {
		t.Errorf("unexpected retry fields: %d/%d", a.RetryCount, a.MaxRetries)
	}
	if a.EnqueuedAt.IsZero() {
		t.Error("expected EnqueuedAt to be set")
	}
}

func TestEnqueueOptions(t *testing.T) {
	s := newTestStore(t, nil, Config{})
	ctx := context.Background()

	id := s.Enqueue(ctx, CreateConfession{TempID: "temp-1", Content: "hi"},
		WithMaxRetries(5),
		WithReconciliation("confessions", map[string]any{"tempId": "temp-1"}))
	a, _ := s.Get(id)
	if a.MaxRetries != 5 {
		t.Errorf("expected 5 retries, got %d", a.MaxRetries)
	}
	if a.Reconciliation == nil || a.Reconciliation.Store != "confessions" {
		t.Errorf("expected reconciliation to be attached, got %+v", a.Reconciliation)
	}
}

func TestEnqueueIDsAreUnique(t *testing.T) {
	s := newTestStore(t, nil, Config{MaxSize: 1000})
	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := s.Enqueue(ctx, SaveConfession{ConfessionID: "c"})
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestEnqueuedAtNeverDecreases(t *testing.T) {
	s := newTestStore(t, nil, Config{})
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	s.now = func() time.Time { ts := times[i]; i++; return ts }

	for range times {
		s.Enqueue(ctx, LikeReply{ReplyID: "r"})
	}
	snap := s.Snapshot()
	for j := 1; j < len(snap); j++ {
		if snap[j].EnqueuedAt.Before(snap[j-1].EnqueuedAt) {
			t.Errorf("entry %d enqueued before entry %d", j, j-1)
		}
	}
}

func TestSnapshotPreservesFIFOAndIsACopy(t *testing.T) {
	s := newTestStore(t, nil, Config{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, s.Enqueue(ctx, DeleteReply{ReplyID: fmt.Sprintf("r%d", i)}))
	}
	s.Enqueue(ctx, MarkNotificationsRead{NotificationIDs: []string{"n1", "n2"}})

	snap := s.Snapshot()
	for i, id := range ids {
		if snap[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, snap[i].ID)
		}
	}

	snap[0].RetryCount = 99
	snap[5].Payload.(MarkNotificationsRead).NotificationIDs[0] = "mutated"
	fresh := s.Snapshot()
	if fresh[0].RetryCount != 0 {
		t.Error("snapshot mutation leaked into store")
	}
	if fresh[5].Payload.(MarkNotificationsRead).NotificationIDs[0] != "n1" {
		t.Error("payload slice shared with snapshot")
	}
}

func TestCapDropsOldestFirst(t *testing.T) {
	const maxSize, k = 10, 4
	s := newTestStore(t, nil, Config{MaxSize: maxSize})
	ctx := context.Background()

	var ids []string
	for i := 0; i < maxSize+k; i++ {
		ids = append(ids, s.Enqueue(ctx, LikeConfession{ConfessionID: fmt.Sprintf("c%d", i)}))
	}

	if s.Size() != maxSize {
		t.Fatalf("expected %d entries, got %d", maxSize, s.Size())
	}
	snap := s.Snapshot()
	want := ids[k:]
	for i := range want {
		if snap[i].ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], snap[i].ID)
		}
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t, nil, Config{})
	ctx := context.Background()

	id := s.Enqueue(ctx, UnsaveConfession{ConfessionID: "c1"})
	if !s.Remove(ctx, id) {
		t.Error("expected first remove to report removal")
	}
	if s.Remove(ctx, id) {
		t.Error("expected second remove to be a no-op")
	}
	if s.Size() != 0 {
		t.Errorf("expected empty queue, got %d", s.Size())
	}
}

func TestIncrementRetry(t *testing.T) {
	s := newTestStore(t, nil, Config{})
	ctx := context.Background()

	id := s.Enqueue(ctx, UnlikeReply{ReplyID: "r1"}, WithMaxRetries(2))
	n, ok := s.IncrementRetry(ctx, id)
	if !ok || n != 1 {
		t.Fatalf("expected 1, got %d (ok=%v)", n, ok)
	}
	n, _ = s.IncrementRetry(ctx, id)
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	a, _ := s.Get(id)
	if !a.Exhausted() {
		t.Error("expected action to be exhausted at maxRetries")
	}
	if _, ok := s.IncrementRetry(ctx, "missing"); ok {
		t.Error("expected ok=false for unknown id")
	}
}

func TestClear(t *testing.T) {
	storage := kvstore.NewMemory()
	s := newTestStore(t, storage, Config{})
	ctx := context.Background()

	s.Enqueue(ctx, LikeConfession{ConfessionID: "c1"})
	s.Clear(ctx)
	if s.Size() != 0 {
		t.Errorf("expected empty queue, got %d", s.Size())
	}
	if _, err := storage.GetItem(ctx, DefaultStorageKey); !errors.Is(err, kvstore.ErrNotFound) {
		t.Errorf("expected persisted key removed, got %v", err)
	}
}

func TestRestartResumesSameQueue(t *testing.T) {
	storage := kvstore.NewMemory()
	ctx := context.Background()

	s := newTestStore(t, storage, Config{})
	id1 := s.Enqueue(ctx, LikeConfession{ConfessionID: "c1"})
	id2 := s.Enqueue(ctx, CreateReply{ConfessionID: "c1", Content: "same"})
	id3 := s.Enqueue(ctx, MarkNotificationsRead{NotificationIDs: []string{"n1"}}, WithMaxRetries(7))
	s.IncrementRetry(ctx, id2)

	restarted := newTestStore(t, storage, Config{})
	restarted.Load(ctx)

	snap := restarted.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 actions after reload, got %d", len(snap))
	}
	for i, id := range []string{id1, id2, id3} {
		if snap[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, snap[i].ID)
		}
	}
	if snap[1].RetryCount != 1 {
		t.Errorf("expected retry count to survive restart, got %d", snap[1].RetryCount)
	}
	if snap[2].MaxRetries != 7 {
		t.Errorf("expected maxRetries 7, got %d", snap[2].MaxRetries)
	}
	reply, ok := snap[1].Payload.(CreateReply)
	if !ok || reply.Content != "same" {
		t.Errorf("unexpected payload after reload: %#v", snap[1].Payload)
	}
}

func TestEnqueueBeforeLoadKeepsPersisted(t *testing.T) {
	storage := kvstore.NewMemory()
	ctx := context.Background()

	first := newTestStore(t, storage, Config{})
	oldID := first.Enqueue(ctx, LikeConfession{ConfessionID: "old"})

	s := newTestStore(t, storage, Config{})
	newID := s.Enqueue(ctx, LikeConfession{ConfessionID: "new"})
	s.Load(ctx)

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != oldID || snap[1].ID != newID {
		t.Fatalf("expected old then new action, got %+v", snap)
	}

	restarted := newTestStore(t, storage, Config{})
	restarted.Load(ctx)
	if restarted.Size() != 2 {
		t.Errorf("expected both actions persisted, got %d", restarted.Size())
	}
}

func TestLoadRunsOnce(t *testing.T) {
	storage := kvstore.NewMemory()
	ctx := context.Background()
	_ = storage.SetItem(ctx, DefaultStorageKey,
		`[{"id":"1","type":"LIKE_CONFESSION","payload":{"confessionId":"c1"},"maxRetries":3}]`)

	s := newTestStore(t, storage, Config{})
	if s.Loaded() {
		t.Fatal("new store should not report loaded")
	}
	s.Load(ctx)
	id := s.Enqueue(ctx, LikeConfession{ConfessionID: "c2"})

	// A second Load must not replace the in-memory queue.
	_ = storage.SetItem(ctx, DefaultStorageKey, "[]")
	s.Load(ctx)
	snap := s.Snapshot()
	if !s.Loaded() || len(snap) != 2 || snap[0].ID != "1" || snap[1].ID != id {
		t.Fatalf("unexpected queue after second load: %+v", snap)
	}
}

func TestLoadCorruptBlobFailsOpen(t *testing.T) {
	storage := kvstore.NewMemory()
	ctx := context.Background()
	_ = storage.SetItem(ctx, DefaultStorageKey, "{{{ not json")

	s := newTestStore(t, storage, Config{})
	s.Load(ctx)
	if s.Size() != 0 {
		t.Errorf("expected empty queue, got %d", s.Size())
	}
}

func TestLoadSkipsUndecodableEntries(t *testing.T) {
	storage := kvstore.NewMemory()
	ctx := context.Background()
	blob := `[
		{"id":"1","type":"LIKE_CONFESSION","payload":{"confessionId":"c1"},"retryCount":0,"maxRetries":3},
		{"id":"2","type":"TELEPORT","payload":{}},
		{"id":"3","type":"SAVE_CONFESSION","payload":{"confessionId":"c3"}}
	]`
	_ = storage.SetItem(ctx, DefaultStorageKey, blob)

	s := newTestStore(t, storage, Config{})
	s.Load(ctx)
	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != "1" || snap[1].ID != "3" {
		t.Fatalf("unexpected queue after load: %+v", snap)
	}
	if snap[1].MaxRetries != DefaultMaxRetries {
		t.Errorf("expected default maxRetries for legacy entry, got %d", snap[1].MaxRetries)
	}
}

func TestLoadUnreadableStorageFailsOpen(t *testing.T) {
	storage := &failingStorage{Memory: kvstore.NewMemory(), getErr: errors.New("io error")}
	s := newTestStore(t, storage, Config{})
	s.Load(context.Background())
	if s.Size() != 0 {
		t.Errorf("expected empty queue, got %d", s.Size())
	}
}

func TestPersistFailureKeepsQueueInMemory(t *testing.T) {
	storage := &failingStorage{Memory: kvstore.NewMemory()}
	s := newTestStore(t, storage, Config{})
	ctx := context.Background()

	id := s.Enqueue(ctx, LikeConfession{ConfessionID: "c1"})
	if id == "" || s.Size() != 1 {
		t.Fatal("enqueue should succeed despite storage failure")
	}
	if err := s.Persist(ctx); err == nil {
		t.Error("expected explicit Persist to surface the storage error")
	}
	if n, ok := s.IncrementRetry(ctx, id); !ok || n != 1 {
		t.Errorf("expected in-memory increment, got %d (ok=%v)", n, ok)
	}
}
