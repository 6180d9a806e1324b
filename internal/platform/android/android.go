//go:build android

// Package android exposes the offline action queue to Android apps via
// gomobile bindings.
//
// # Building for Android
//
// Prerequisites:
//
//	go install golang.org/x/mobile/cmd/gomobile@latest
//	gomobile init
//
// Build AAR (Android Archive):
//
//	gomobile bind -target android -o confessly.aar github.com/clawinfra/confessly/internal/platform/android
//
// The host feeds connectivity from ConnectivityManager.NetworkCallback into
// SetOnline and the auth session into SetSession. Only primitive types are
// exported in the gomobile API surface.
package android

import (
	"fmt"
	"strconv"

	"github.com/clawinfra/confessly/internal/platform/mobile"
)

// Intent actions understood by HandleIntent.
const (
	ActionConnectivity = "com.confessly.ACTION_CONNECTIVITY_CHANGED"
	ActionFlush        = "com.confessly.ACTION_FLUSH_QUEUE"
	ActionSignOut      = "com.confessly.ACTION_SIGN_OUT"
)

// QueueService runs the offline queue inside the app process.
type QueueService struct {
	svc *mobile.QueueService
}

// NewQueueService creates the service. dataDir should be Context.getFilesDir().
func NewQueueService(dataDir, backendURL, anonKey, logLevel string) (*QueueService, error) {
	svc, err := mobile.NewQueueService("android", dataDir, backendURL, anonKey, logLevel)
	if err != nil {
		return nil, err
	}
	return &QueueService{svc: svc}, nil
}

func (q *QueueService) Start() error          { return q.svc.Start() }
func (q *QueueService) Stop() error           { return q.svc.Stop() }
func (q *QueueService) SetOnline(online bool) { q.svc.SetOnline(online) }
func (q *QueueService) SetSession(access, refresh string) {
	q.svc.SetSession(access, refresh)
}

func (q *QueueService) Enqueue(actionType, payloadJSON string, maxRetries int) (string, error) {
	return q.svc.Enqueue(actionType, payloadJSON, maxRetries)
}

func (q *QueueService) QueueSize() int     { return q.svc.QueueSize() }
func (q *QueueService) QueueJSON() string  { return q.svc.QueueJSON() }
func (q *QueueService) Clear()             { q.svc.Clear() }
func (q *QueueService) ProcessNow() string { return q.svc.ProcessNow() }
func (q *QueueService) GetStatus() string  { return q.svc.Status() }

// HandleIntent processes a broadcast forwarded by the host service.
// gomobile cannot bind maps, so the single relevant extra is passed as value.
func (q *QueueService) HandleIntent(action, value string) error {
	switch action {
	case ActionConnectivity:
		online, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("android: connectivity extra %q: %w", value, err)
		}
		q.svc.SetOnline(online)
	case ActionFlush:
		q.svc.ProcessNow()
	case ActionSignOut:
		q.svc.SetSession("", "")
	default:
		return fmt.Errorf("android: unknown intent action %q", action)
	}
	return nil
}
