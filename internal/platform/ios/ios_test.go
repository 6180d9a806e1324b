//go:build !ios

package ios

import (
	"errors"
	"testing"
)

func TestNewQueueService_NotSupported(t *testing.T) {
	_, err := NewQueueService(t.TempDir(), "https://example.supabase.co", "anon", "info")
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestStub_Methods(t *testing.T) {
	var q QueueService

	if err := q.Start(); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Start: expected ErrNotSupported, got %v", err)
	}
	if err := q.HandleURLScheme("confessly://queue/flush"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("HandleURLScheme: expected ErrNotSupported, got %v", err)
	}
	if _, err := q.Enqueue("SAVE_CONFESSION", `{}`, 0); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Enqueue: expected ErrNotSupported, got %v", err)
	}
	if q.PerformBackgroundFetch() != "{}" {
		t.Error("unexpected background fetch result")
	}
}
