package dispatch

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/clawinfra/confessly/internal/backend"
	"github.com/clawinfra/confessly/internal/queue"
	"github.com/clawinfra/confessly/internal/state"
)

const maxConfessionRunes = 5000

// setConfessionLike is directional, so replaying it converges on the
// requested state instead of flipping it.
func (d *Dispatcher) setConfessionLike(ctx context.Context, confessionID string, liked bool) error {
	if err := requireID("confessionId", confessionID); err != nil {
		return err
	}
	args := map[string]any{
		"p_confession_id": confessionID,
		"p_liked":         liked,
	}
	return d.backend.RPC(ctx, "set_confession_like", args, nil)
}

func (d *Dispatcher) saveConfession(ctx context.Context, userID, confessionID string) error {
	if err := requireID("confessionId", confessionID); err != nil {
		return err
	}
	row := map[string]string{"user_id": userID, "confession_id": confessionID}
	return d.backend.Upsert(ctx, "saved_confessions", row, "user_id,confession_id")
}

func (d *Dispatcher) unsaveConfession(ctx context.Context, userID, confessionID string) error {
	if err := requireID("confessionId", confessionID); err != nil {
		return err
	}
	return d.backend.Delete(ctx, "saved_confessions",
		backend.Eq("user_id", userID), backend.Eq("confession_id", confessionID))
}

func (d *Dispatcher) deleteConfession(ctx context.Context, userID, confessionID string) error {
	if err := requireID("confessionId", confessionID); err != nil {
		return err
	}
	return d.backend.Delete(ctx, "confessions",
		backend.Eq("id", confessionID), backend.Eq("user_id", userID))
}

// ValidateConfession checks a create payload the same way before enqueue
// and before dispatch.
func ValidateConfession(p queue.CreateConfession) error {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return fmt.Errorf("%w: content is empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(content); n > maxConfessionRunes {
		return fmt.Errorf("%w: content is %d characters, limit %d", ErrValidation, n, maxConfessionRunes)
	}
	switch p.MediaType {
	case "", "image", "video":
	default:
		return fmt.Errorf("%w: unsupported media type %q", ErrValidation, p.MediaType)
	}
	if p.MediaType != "" && p.MediaURI == "" {
		return fmt.Errorf("%w: media type without media", ErrValidation)
	}
	return nil
}

func (d *Dispatcher) createConfession(ctx context.Context, userID string, p queue.CreateConfession, rec *queue.Reconciliation) error {
	if err := ValidateConfession(p); err != nil {
		return err
	}

	row := map[string]any{
		"user_id":      userID,
		"content":      strings.TrimSpace(p.Content),
		"is_anonymous": p.IsAnonymous,
	}
	if p.MediaURI != "" {
		objectPath, err := d.uploadMedia(ctx, userID, p)
		if err != nil {
			return err
		}
		row["media_url"] = objectPath
		row["media_type"] = mediaType(p)
	}

	var created map[string]any
	if err := d.backend.Insert(ctx, "confessions", row, &created); err != nil {
		return err
	}

	d.reconcile(p.TempID, rec, created)
	return nil
}

func mediaType(p queue.CreateConfession) string {
	if p.MediaType != "" {
		return p.MediaType
	}
	if strings.HasPrefix(mime.TypeByExtension(filepath.Ext(localPath(p.MediaURI))), "video/") {
		return "video"
	}
	return "image"
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// uploadMedia stores the local file under <user>/<unix-ms>-<uuid><ext> and
// returns the object path.
func (d *Dispatcher) uploadMedia(ctx context.Context, userID string, p queue.CreateConfession) (string, error) {
	file := localPath(p.MediaURI)
	data, err := d.readFile(file)
	if err != nil {
		return "", fmt.Errorf("%w: read media: %v", ErrValidation, err)
	}

	kind := mediaType(p)
	ext := strings.ToLower(filepath.Ext(file))
	if ext == "" {
		ext = ".jpg"
		if kind == "video" {
			ext = ".mp4"
		}
	}
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = kind + "/" + strings.TrimPrefix(ext, ".")
	}

	objectPath := path.Join(userID, fmt.Sprintf("%d-%s%s", d.now().UnixMilli(), d.newID(), ext))
	return d.backend.Upload(ctx, d.bucket, objectPath, data, contentType)
}

// reconcile swaps the optimistic placeholder for the created row. The
// remote write already succeeded, so failures here are only logged.
func (d *Dispatcher) reconcile(tempID string, rec *queue.Reconciliation, created map[string]any) {
	storeName := state.DefaultStore
	if rec != nil {
		if rec.Store != "" {
			storeName = rec.Store
		}
		if tempID == "" {
			tempID, _ = rec.Metadata["tempId"].(string)
		}
	}
	if tempID == "" {
		return
	}
	logger := d.logger.With("temp_id", tempID, "store", storeName)

	store, ok := d.stores.Lookup(storeName)
	if !ok {
		if rec != nil {
			logger.Warn("reconciliation store not registered")
		}
		return
	}

	item, err := state.FromRecord(created, func(p string) string {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			return p
		}
		return d.backend.PublicURL(d.bucket, p)
	})
	if err != nil {
		logger.Warn("reconciliation failed", "error", err)
		return
	}
	if !state.ReplaceByID(store, tempID, item) {
		logger.Warn("placeholder not found for reconciliation")
		return
	}
	logger.Debug("placeholder reconciled", "id", item.ID)
}
