// Package dispatch applies queued actions to the backend. Each action type
// maps to one idempotent (or upsert-based) remote write so that replaying an
// action after a crash mid-pass is safe.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/clawinfra/confessly/internal/backend"
	"github.com/clawinfra/confessly/internal/queue"
	"github.com/clawinfra/confessly/internal/state"
)

var (
	// ErrValidation wraps payloads that the backend would reject. They still
	// consume the action's retry budget like any other failure.
	ErrValidation = errors.New("dispatch: invalid payload")
	// ErrUnknownAction is returned for a payload type with no handler.
	ErrUnknownAction = errors.New("dispatch: unknown action type")
)

// DefaultMediaBucket is the storage bucket for confession attachments.
const DefaultMediaBucket = "confession-media"

// Backend is the subset of the backend client the dispatcher needs.
type Backend interface {
	CurrentUser(ctx context.Context) (backend.User, error)
	Insert(ctx context.Context, table string, row any, out any) error
	Upsert(ctx context.Context, table string, row any, onConflict string) error
	Update(ctx context.Context, table string, values any, filters ...backend.Filter) error
	Delete(ctx context.Context, table string, filters ...backend.Filter) error
	Count(ctx context.Context, table string, filters ...backend.Filter) (int, error)
	RPC(ctx context.Context, fn string, args any, out any) error
	Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error)
	PublicURL(bucket, objectPath string) string
}

// Config holds dispatcher settings.
type Config struct {
	MediaBucket string
}

// Dispatcher turns queued actions into backend calls.
type Dispatcher struct {
	backend  Backend
	stores   *state.Registry
	bucket   string
	logger   *slog.Logger
	now      func() time.Time
	readFile func(name string) ([]byte, error)
	newID    func() string
}

// New creates a dispatcher. stores may be nil when no UI state needs
// reconciling, e.g. in the CLI.
func New(b Backend, stores *state.Registry, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MediaBucket == "" {
		cfg.MediaBucket = DefaultMediaBucket
	}
	if stores == nil {
		stores = state.NewRegistry()
	}
	return &Dispatcher{
		backend:  b,
		stores:   stores,
		bucket:   cfg.MediaBucket,
		logger:   logger.With("component", "dispatch"),
		now:      time.Now,
		readFile: os.ReadFile,
		newID:    uuid.NewString,
	}
}

// Dispatch applies one action. A nil error means the remote write is done
// and the action can be dropped from the queue.
func (d *Dispatcher) Dispatch(ctx context.Context, action queue.QueuedAction) error {
	user, err := d.backend.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: %w", action.Type, action.ID, err)
	}

	switch p := action.Payload.(type) {
	case queue.LikeConfession:
		err = d.setConfessionLike(ctx, p.ConfessionID, true)
	case queue.UnlikeConfession:
		err = d.setConfessionLike(ctx, p.ConfessionID, false)
	case queue.SaveConfession:
		err = d.saveConfession(ctx, user.ID, p.ConfessionID)
	case queue.UnsaveConfession:
		err = d.unsaveConfession(ctx, user.ID, p.ConfessionID)
	case queue.DeleteConfession:
		err = d.deleteConfession(ctx, user.ID, p.ConfessionID)
	case queue.CreateConfession:
		err = d.createConfession(ctx, user.ID, p, action.Reconciliation)
	case queue.CreateReply:
		err = d.createReply(ctx, user.ID, p)
	case queue.DeleteReply:
		err = d.deleteReply(ctx, user.ID, p.ReplyID)
	case queue.LikeReply:
		err = d.likeReply(ctx, user.ID, p.ReplyID)
	case queue.UnlikeReply:
		err = d.unlikeReply(ctx, user.ID, p.ReplyID)
	case queue.MarkNotificationsRead:
		err = d.markNotificationsRead(ctx, user.ID, p.NotificationIDs)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownAction, action.Payload)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", action.Type, action.ID, err)
	}

	d.logger.Debug("action applied", "action_id", action.ID, "type", action.Type)
	return nil
}

func requireID(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	return nil
}
