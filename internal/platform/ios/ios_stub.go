//go:build !ios

// Package ios exposes the offline action queue to iOS apps via gomobile
// bindings. On non-iOS builds it exports stubs that return ErrNotSupported.
package ios

import "errors"

// ErrNotSupported is returned by iOS-specific operations on non-iOS platforms.
var ErrNotSupported = errors.New("ios: not supported on this platform")

type QueueService struct{}

func NewQueueService(dataDir, backendURL, anonKey, logLevel string) (*QueueService, error) {
	return nil, ErrNotSupported
}

func (q *QueueService) Start() error                      { return ErrNotSupported }
func (q *QueueService) Stop() error                       { return ErrNotSupported }
func (q *QueueService) SetOnline(online bool)             {}
func (q *QueueService) SetSession(access, refresh string) {}
func (q *QueueService) QueueSize() int                    { return 0 }
func (q *QueueService) QueueJSON() string                 { return "[]" }
func (q *QueueService) Clear()                            {}
func (q *QueueService) GetStatus() string                 { return `{"running":false,"platform":"stub"}` }
func (q *QueueService) PerformBackgroundFetch() string    { return "{}" }
func (q *QueueService) HandleURLScheme(rawURL string) error {
	return ErrNotSupported
}

func (q *QueueService) Enqueue(actionType, payloadJSON string, maxRetries int) (string, error) {
	return "", ErrNotSupported
}
