//go:build !android

// Package android exposes the offline action queue to Android apps via
// gomobile bindings. On non-Android builds it exports stubs that return
// ErrNotSupported, so cross-platform code can reference the package.
package android

import "errors"

// ErrNotSupported is returned by Android-specific operations on non-Android platforms.
var ErrNotSupported = errors.New("android: not supported on this platform")

const (
	ActionConnectivity = "com.confessly.ACTION_CONNECTIVITY_CHANGED"
	ActionFlush        = "com.confessly.ACTION_FLUSH_QUEUE"
	ActionSignOut      = "com.confessly.ACTION_SIGN_OUT"
)

type QueueService struct{}

func NewQueueService(dataDir, backendURL, anonKey, logLevel string) (*QueueService, error) {
	return nil, ErrNotSupported
}

func (q *QueueService) Start() error                            { return ErrNotSupported }
func (q *QueueService) Stop() error                             { return ErrNotSupported }
func (q *QueueService) SetOnline(online bool)                   {}
func (q *QueueService) SetSession(access, refresh string)       {}
func (q *QueueService) QueueSize() int                          { return 0 }
func (q *QueueService) QueueJSON() string                       { return "[]" }
func (q *QueueService) Clear()                                  {}
func (q *QueueService) ProcessNow() string                      { return "{}" }
func (q *QueueService) GetStatus() string                       { return `{"running":false,"platform":"stub"}` }
func (q *QueueService) HandleIntent(action, value string) error { return ErrNotSupported }

func (q *QueueService) Enqueue(actionType, payloadJSON string, maxRetries int) (string, error) {
	return "", ErrNotSupported
}
