//go:build ios

// Package ios exposes the offline action queue to iOS apps via gomobile
// bindings.
//
// # Building for iOS
//
// Prerequisites:
//
//	go install golang.org/x/mobile/cmd/gomobile@latest
//	gomobile init
//	# Xcode and iOS SDK required (macOS only)
//
// Build XCFramework:
//
//	gomobile bind -target ios -o Confessly.xcframework github.com/clawinfra/confessly/internal/platform/ios
//
// # Background Fetch
//
// Register a background refresh task in Info.plist:
//
//	<key>BGTaskSchedulerPermittedIdentifiers</key>
//	<array>
//	  <string>com.confessly.queue.flush</string>
//	</array>
//
// Then call PerformBackgroundFetch() from the task handler. Feed
// NWPathMonitor updates into SetOnline.
package ios

import (
	"fmt"
	"net/url"

	"github.com/clawinfra/confessly/internal/platform/mobile"
)

// QueueService runs the offline queue inside the app process.
type QueueService struct {
	svc *mobile.QueueService
}

// NewQueueService creates the service. dataDir should be inside the app's
// Application Support directory.
func NewQueueService(dataDir, backendURL, anonKey, logLevel string) (*QueueService, error) {
	svc, err := mobile.NewQueueService("ios", dataDir, backendURL, anonKey, logLevel)
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

func (q *QueueService) QueueSize() int    { return q.svc.QueueSize() }
func (q *QueueService) QueueJSON() string { return q.svc.QueueJSON() }
func (q *QueueService) Clear()            { q.svc.Clear() }
func (q *QueueService) GetStatus() string { return q.svc.Status() }

// PerformBackgroundFetch runs one pass and returns its summary as JSON.
func (q *QueueService) PerformBackgroundFetch() string {
	return q.svc.ProcessNow()
}

// HandleURLScheme handles confessly://queue/flush, confessly://network/online
// and confessly://network/offline.
func (q *QueueService) HandleURLScheme(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("ios: parse url: %w", err)
	}
	if u.Scheme != "confessly" {
		return fmt.Errorf("ios: unexpected scheme %q", u.Scheme)
	}
	switch u.Host + u.Path {
	case "queue/flush":
		q.svc.ProcessNow()
	case "network/online":
		q.svc.SetOnline(true)
	case "network/offline":
		q.svc.SetOnline(false)
	default:
		return fmt.Errorf("ios: unknown url %q", rawURL)
	}
	return nil
}
