package dispatch

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/clawinfra/confessly/internal/backend"
	"github.com/clawinfra/confessly/internal/queue"
)

const maxReplyRunes = 1000

// ValidateReply checks a reply payload.
func ValidateReply(p queue.CreateReply) error {
	if err := requireID("confessionId", p.ConfessionID); err != nil {
		return err
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return fmt.Errorf("%w: reply is empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(content); n > maxReplyRunes {
		return fmt.Errorf("%w: reply is %d characters, limit %d", ErrValidation, n, maxReplyRunes)
	}
	return nil
}

func (d *Dispatcher) createReply(ctx context.Context, userID string, p queue.CreateReply) error {
	if err := ValidateReply(p); err != nil {
		return err
	}
	row := map[string]any{
		"confession_id": p.ConfessionID,
		"user_id":       userID,
		"content":       strings.TrimSpace(p.Content),
		"is_anonymous":  p.IsAnonymous,
	}
	return d.backend.Insert(ctx, "replies", row, nil)
}

func (d *Dispatcher) deleteReply(ctx context.Context, userID, replyID string) error {
	if err := requireID("replyId", replyID); err != nil {
		return err
	}
	return d.backend.Delete(ctx, "replies", backend.Eq("id", replyID), backend.Eq("user_id", userID))
}

func (d *Dispatcher) likeReply(ctx context.Context, userID, replyID string) error {
	if err := requireID("replyId", replyID); err != nil {
		return err
	}
	row := map[string]string{"reply_id": replyID, "user_id": userID}
	if err := d.backend.Upsert(ctx, "reply_likes", row, "reply_id,user_id"); err != nil {
		return err
	}
	return d.syncReplyLikes(ctx, replyID)
}

func (d *Dispatcher) unlikeReply(ctx context.Context, userID, replyID string) error {
	if err := requireID("replyId", replyID); err != nil {
		return err
	}
	if err := d.backend.Delete(ctx, "reply_likes",
		backend.Eq("reply_id", replyID), backend.Eq("user_id", userID)); err != nil {
		return err
	}
	return d.syncReplyLikes(ctx, replyID)
}

// syncReplyLikes writes the recounted total rather than an increment, so a
// replayed like or unlike leaves the counter correct.
func (d *Dispatcher) syncReplyLikes(ctx context.Context, replyID string) error {
	n, err := d.backend.Count(ctx, "reply_likes", backend.Eq("reply_id", replyID))
	if err != nil {
		return err
	}
	return d.backend.Update(ctx, "replies", map[string]int{"likes_count": n}, backend.Eq("id", replyID))
}

func (d *Dispatcher) markNotificationsRead(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	values := map[string]string{"read_at": d.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")}
	return d.backend.Update(ctx, "notifications", values,
		backend.In("id", ids...), backend.Eq("user_id", userID))
}
