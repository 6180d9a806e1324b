package queue

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestActionJSONShape(t *testing.T) {
	a := QueuedAction{
		ID:         "1700000000000-abcd1234",
		Type:       CreateConfessionType,
		Payload:    CreateConfession{TempID: "temp-1", Content: "hello", MediaType: "image"},
		EnqueuedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		MaxRetries: 3,
		Reconciliation: &Reconciliation{
			Store: "confessions",
		},
	}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"id", "type", "payload", "enqueuedAt", "retryCount", "maxRetries", "reconciliation"} {
		if _, ok := generic[field]; !ok {
			t.Errorf("missing field %q in %s", field, data)
		}
	}
	payload := generic["payload"].(map[string]any)
	if payload["tempId"] != "temp-1" {
		t.Errorf("unexpected payload %v", payload)
	}

	var back QueuedAction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := back.Payload.(CreateConfession); !ok {
		t.Errorf("expected CreateConfession payload, got %T", back.Payload)
	}
}

func TestMarshalRejectsMismatchedPayload(t *testing.T) {
	a := QueuedAction{ID: "x", Type: LikeReplyType, Payload: LikeConfession{ConfessionID: "c"}}
	if _, err := json.Marshal(a); err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Errorf("expected mismatch error, got %v", err)
	}
}

func TestDecodePayloadUnknownType(t *testing.T) {
	if _, err := DecodePayload("NOPE", json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestEveryActionTypeHasPayload(t *testing.T) {
	for _, at := range ActionTypes {
		p, err := DecodePayload(at, json.RawMessage(`{}`))
		if err != nil {
			t.Errorf("%s: %v", at, err)
			continue
		}
		if p.ActionType() != at {
			t.Errorf("%s decoded into %s payload", at, p.ActionType())
		}
		if !at.Valid() {
			t.Errorf("%s reported invalid", at)
		}
	}
	if len(ActionTypes) != 11 {
		t.Errorf("expected 11 action types, got %d", len(ActionTypes))
	}
}
