package queue

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// ActionType is the closed set of remote operations the queue can replay.
type ActionType string

const (
	LikeConfessionType       ActionType = "LIKE_CONFESSION"
	UnlikeConfessionType     ActionType = "UNLIKE_CONFESSION"
	SaveConfessionType       ActionType = "SAVE_CONFESSION"
	UnsaveConfessionType     ActionType = "UNSAVE_CONFESSION"
	DeleteConfessionType     ActionType = "DELETE_CONFESSION"
	CreateConfessionType     ActionType = "CREATE_CONFESSION"
	CreateReplyType          ActionType = "CREATE_REPLY"
	DeleteReplyType          ActionType = "DELETE_REPLY"
	LikeReplyType            ActionType = "LIKE_REPLY"
	UnlikeReplyType          ActionType = "UNLIKE_REPLY"
	MarkNotificationReadType ActionType = "MARK_NOTIFICATION_READ"
)

// ActionTypes lists every known tag in declaration order.
var ActionTypes = []ActionType{
	LikeConfessionType,
	UnlikeConfessionType,
	SaveConfessionType,
	UnsaveConfessionType,
	DeleteConfessionType,
	CreateConfessionType,
	CreateReplyType,
	DeleteReplyType,
	LikeReplyType,
	UnlikeReplyType,
	MarkNotificationReadType,
}

// Valid reports whether t is one of the known tags.
func (t ActionType) Valid() bool {
	return slices.Contains(ActionTypes, t)
}

// Reconciliation tells the dispatcher which client-side store holds a
// placeholder that should be swapped for the server record after a create.
type Reconciliation struct {
	Store    string         `json:"store"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueuedAction is one deferred user mutation.
type QueuedAction struct {
	ID             string
	Type           ActionType
	Payload        Payload
	EnqueuedAt     time.Time
	RetryCount     int
	MaxRetries     int
	Reconciliation *Reconciliation
}

// Exhausted reports whether the action has used its whole retry budget.
func (a QueuedAction) Exhausted() bool {
	return a.RetryCount >= a.MaxRetries
}

// Clone returns a copy that shares no mutable state with a.
func (a QueuedAction) Clone() QueuedAction {
	out := a
	if a.Reconciliation != nil {
		r := *a.Reconciliation
		r.Metadata = maps.Clone(a.Reconciliation.Metadata)
		out.Reconciliation = &r
	}
	if p, ok := a.Payload.(MarkNotificationsRead); ok {
		p.NotificationIDs = slices.Clone(p.NotificationIDs)
		out.Payload = p
	}
	return out
}

// wireAction is the persisted JSON shape of a QueuedAction.
type wireAction struct {
	ID             string          `json:"id"`
	Type           ActionType      `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
	RetryCount     int             `json:"retryCount"`
	MaxRetries     int             `json:"maxRetries"`
	Reconciliation *Reconciliation `json:"reconciliation,omitempty"`
}

func (a QueuedAction) MarshalJSON() ([]byte, error) {
	if a.Payload == nil {
		return nil, fmt.Errorf("queue: action %s has no payload", a.ID)
	}
	if a.Payload.ActionType() != a.Type {
		return nil, fmt.Errorf("queue: action %s type %s does not match payload %s", a.ID, a.Type, a.Payload.ActionType())
	}
	raw, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal payload: %w", err)
	}
	return json.Marshal(wireAction{
		ID:             a.ID,
		Type:           a.Type,
		Payload:        raw,
		EnqueuedAt:     a.EnqueuedAt,
		RetryCount:     a.RetryCount,
		MaxRetries:     a.MaxRetries,
		Reconciliation: a.Reconciliation,
	})
}

func (a *QueuedAction) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID == "" {
		return fmt.Errorf("queue: action without id")
	}
	p, err := DecodePayload(w.Type, w.Payload)
	if err != nil {
		return fmt.Errorf("queue: action %s: %w", w.ID, err)
	}
	*a = QueuedAction{
		ID:             w.ID,
		Type:           w.Type,
		Payload:        p,
		EnqueuedAt:     w.EnqueuedAt,
		RetryCount:     w.RetryCount,
		MaxRetries:     w.MaxRetries,
		Reconciliation: w.Reconciliation,
	}
	return nil
}
