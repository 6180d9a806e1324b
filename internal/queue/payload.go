package queue

import (
	"encoding/json"
	"fmt"
)

// Payload is the typed body of a queued action. Exactly one payload type
// exists per ActionType; the set is closed by the unexported marker method.
type Payload interface {
	ActionType() ActionType
	payload()
}

// LikeConfession likes a confession as the signed-in user.
type LikeConfession struct {
	ConfessionID string `json:"confessionId"`
}

// UnlikeConfession removes the user's like from a confession.
type UnlikeConfession struct {
	ConfessionID string `json:"confessionId"`
}

// SaveConfession bookmarks a confession.
type SaveConfession struct {
	ConfessionID string `json:"confessionId"`
}

// UnsaveConfession removes a bookmark.
type UnsaveConfession struct {
	ConfessionID string `json:"confessionId"`
}

// DeleteConfession deletes one of the user's own confessions.
type DeleteConfession struct {
	ConfessionID string `json:"confessionId"`
}

// CreateConfession is a confession authored while offline. TempID is the
// placeholder id the UI shows until the server assigns the real one.
type CreateConfession struct {
	TempID      string `json:"tempId,omitempty"`
	Content     string `json:"content"`
	IsAnonymous bool   `json:"isAnonymous"`
	// MediaURI is a local file path to upload with the confession.
	MediaURI  string `json:"mediaUri,omitempty"`
	MediaType string `json:"mediaType,omitempty"` // "image" or "video"
}

// CreateReply posts a reply under a confession.
type CreateReply struct {
	ConfessionID string `json:"confessionId"`
	Content      string `json:"content"`
	IsAnonymous  bool   `json:"isAnonymous"`
}

// DeleteReply deletes one of the user's own replies.
type DeleteReply struct {
	ReplyID string `json:"replyId"`
}

// LikeReply likes a reply.
type LikeReply struct {
	ReplyID string `json:"replyId"`
}

// UnlikeReply removes the user's like from a reply.
type UnlikeReply struct {
	ReplyID string `json:"replyId"`
}

// MarkNotificationsRead marks the listed notifications as read.
type MarkNotificationsRead struct {
	NotificationIDs []string `json:"notificationIds"`
}

func (LikeConfession) ActionType() ActionType        { return LikeConfessionType }
func (UnlikeConfession) ActionType() ActionType      { return UnlikeConfessionType }
func (SaveConfession) ActionType() ActionType        { return SaveConfessionType }
func (UnsaveConfession) ActionType() ActionType      { return UnsaveConfessionType }
func (DeleteConfession) ActionType() ActionType      { return DeleteConfessionType }
func (CreateConfession) ActionType() ActionType      { return CreateConfessionType }
func (CreateReply) ActionType() ActionType           { return CreateReplyType }
func (DeleteReply) ActionType() ActionType           { return DeleteReplyType }
func (LikeReply) ActionType() ActionType             { return LikeReplyType }
func (UnlikeReply) ActionType() ActionType           { return UnlikeReplyType }
func (MarkNotificationsRead) ActionType() ActionType { return MarkNotificationReadType }

func (LikeConfession) payload()        {}
func (UnlikeConfession) payload()      {}
func (SaveConfession) payload()        {}
func (UnsaveConfession) payload()      {}
func (DeleteConfession) payload()      {}
func (CreateConfession) payload()      {}
func (CreateReply) payload()           {}
func (DeleteReply) payload()           {}
func (LikeReply) payload()             {}
func (UnlikeReply) payload()           {}
func (MarkNotificationsRead) payload() {}

// DecodePayload decodes raw into the payload type registered for t.
func DecodePayload(t ActionType, raw json.RawMessage) (Payload, error) {
	switch t {
	case LikeConfessionType:
		return decodeAs[LikeConfession](raw)
	case UnlikeConfessionType:
		return decodeAs[UnlikeConfession](raw)
	case SaveConfessionType:
		return decodeAs[SaveConfession](raw)
	case UnsaveConfessionType:
		return decodeAs[UnsaveConfession](raw)
	case DeleteConfessionType:
		return decodeAs[DeleteConfession](raw)
	case CreateConfessionType:
		return decodeAs[CreateConfession](raw)
	case CreateReplyType:
		return decodeAs[CreateReply](raw)
	case DeleteReplyType:
		return decodeAs[DeleteReply](raw)
	case LikeReplyType:
		return decodeAs[LikeReply](raw)
	case UnlikeReplyType:
		return decodeAs[UnlikeReply](raw)
	case MarkNotificationReadType:
		return decodeAs[MarkNotificationsRead](raw)
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
}

func decodeAs[P Payload](raw json.RawMessage) (Payload, error) {
	var p P
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", p.ActionType(), err)
	}
	return p, nil
}
