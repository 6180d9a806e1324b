package mobile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newService(t *testing.T, dir, url string) *QueueService {
	t.Helper()
	s, err := NewQueueService("test", dir, url, "anon", "error")
	if err != nil {
		t.Fatalf("NewQueueService: %v", err)
	}
	return s
}

func TestNewQueueService_Validation(t *testing.T) {
	if _, err := NewQueueService("test", "", "https://x.example", "", ""); err == nil {
		t.Error("expected error for missing dataDir")
	}
	if _, err := NewQueueService("test", t.TempDir(), "", "", ""); err == nil {
		t.Error("expected error for missing backendURL")
	}
	if _, err := NewQueueService("test", t.TempDir(), "https://x.example", "", "loud"); err == nil {
		t.Error("expected error for bad log level")
	}
}

func TestQueueService_OfflineQueueSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s := newService(t, dir, "https://backend.invalid")
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.IsOnline() {
		t.Fatal("service should start offline")
	}
	id, err := s.Enqueue("LIKE_CONFESSION", `{"confessionId":"c1"}`, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := s.Enqueue("CREATE_REPLY", `{"confessionId":"c1","content":""}`, 0); err == nil {
		t.Error("expected validation error for empty reply")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	again := newService(t, dir, "https://backend.invalid")
	defer again.Stop()
	if n := again.QueueSize(); n != 1 {
		t.Fatalf("expected persisted action before Start, got %d", n)
	}
	if err := again.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var queued []map[string]any
	if err := json.Unmarshal([]byte(again.QueueJSON()), &queued); err != nil {
		t.Fatalf("QueueJSON: %v", err)
	}
	if len(queued) != 1 || queued[0]["id"] != id || queued[0]["type"] != "LIKE_CONFESSION" {
		t.Errorf("unexpected queue %v", queued)
	}
	if err := again.Start(); err != nil {
		t.Errorf("second Start should be a no-op: %v", err)
	}

	again.Clear()
	if again.QueueSize() != 0 {
		t.Errorf("expected empty queue after Clear")
	}
}

func TestQueueService_EnqueueBeforeStartKeepsPersisted(t *testing.T) {
	dir := t.TempDir()

	s := newService(t, dir, "https://backend.invalid")
	oldID, err := s.Enqueue("LIKE_CONFESSION", `{"confessionId":"old"}`, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	again := newService(t, dir, "https://backend.invalid")
	newID, err := again.Enqueue("LIKE_CONFESSION", `{"confessionId":"new"}`, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := again.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := again.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	third := newService(t, dir, "https://backend.invalid")
	defer third.Stop()
	var queued []map[string]any
	if err := json.Unmarshal([]byte(third.QueueJSON()), &queued); err != nil {
		t.Fatalf("QueueJSON: %v", err)
	}
	if len(queued) != 2 || queued[0]["id"] != oldID || queued[1]["id"] != newID {
		t.Errorf("expected old then new action, got %v", queued)
	}
}

func TestQueueService_ProcessNowBeforeStartSeesPersisted(t *testing.T) {
	dir := t.TempDir()

	s := newService(t, dir, "https://backend.invalid")
	if _, err := s.Enqueue("SAVE_CONFESSION", `{"confessionId":"c1"}`, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	again := newService(t, dir, "https://backend.invalid")
	defer again.Stop()
	out := again.ProcessNow()
	if !strings.Contains(out, `"skipped":"offline"`) || !strings.Contains(out, `"remaining":1`) {
		t.Errorf("expected the persisted action to be seen and kept, got %s", out)
	}
}

func TestQueueService_ReplaysWhenOnline(t *testing.T) {
	hits := make(chan string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s := newService(t, t.TempDir(), server.URL)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("k"))
	s.SetSession(tok, "refresh")

	if _, err := s.Enqueue("DELETE_REPLY", `{"replyId":"r1"}`, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	s.SetOnline(true)

	select {
	case path := <-hits:
		if path != "/rest/v1/replies" {
			t.Errorf("unexpected path %s", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("action was not replayed after going online")
	}
}

func TestQueueService_ProcessNowOffline(t *testing.T) {
	s := newService(t, t.TempDir(), "https://backend.invalid")
	defer s.Stop()

	s.Enqueue("UNSAVE_CONFESSION", `{"confessionId":"c1"}`, 0)
	out := s.ProcessNow()
	if !strings.Contains(out, `"skipped":"offline"`) {
		t.Errorf("expected offline skip, got %s", out)
	}

	var status map[string]any
	if err := json.Unmarshal([]byte(s.Status()), &status); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status["running"] != false || status["queued"] != float64(1) || status["platform"] != "test" {
		t.Errorf("unexpected status %v", status)
	}
}

func TestQueueService_SignOut(t *testing.T) {
	s := newService(t, t.TempDir(), "https://backend.invalid")
	defer s.Stop()

	s.SetSession("token", "")
	if _, ok := s.app.Backend.Auth().Session(); !ok {
		t.Fatal("expected session")
	}
	s.SetSession("", "")
	if _, ok := s.app.Backend.Auth().Session(); ok {
		t.Error("expected session cleared")
	}
}

func TestQueueService_StopIsFinal(t *testing.T) {
	s := newService(t, t.TempDir(), "https://backend.invalid")
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("expected Start after Stop to fail")
	}
}
