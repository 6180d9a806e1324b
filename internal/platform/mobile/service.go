// Package mobile is the platform-neutral core behind the Android and iOS
// bindings. Its API uses only primitive types so the wrappers can expose it
// through gomobile unchanged.
package mobile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/clawinfra/confessly/internal/app"
	"github.com/clawinfra/confessly/internal/backend"
	"github.com/clawinfra/confessly/internal/config"
	"github.com/clawinfra/confessly/internal/logging"
)

// QueueService runs the offline queue inside a host app. The host reports
// connectivity with SetOnline and the signed-in session with SetSession.
type QueueService struct {
	app      *app.App
	platform string

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan error
}

type serviceStatus struct {
	Running  bool   `json:"running"`
	Online   bool   `json:"online"`
	Queued   int    `json:"queued"`
	Platform string `json:"platform"`
}

// NewQueueService builds a service persisting to a SQLite database under
// dataDir and reads the queue left by a previous run. It starts offline
// until the host calls SetOnline(true).
func NewQueueService(platform, dataDir, backendURL, anonKey, logLevel string) (*QueueService, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("%s: dataDir is required", platform)
	}
	if backendURL == "" {
		return nil, fmt.Errorf("%s: backendURL is required", platform)
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("%s: create data dir: %w", platform, err)
	}

	cfg := config.DefaultConfig()
	cfg.Server.DataDir = dataDir
	cfg.Server.LogFormat = "json"
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	cfg.Storage.Backend = "sqlite"
	cfg.Backend.URL = backendURL
	cfg.Backend.AnonKey = anonKey
	cfg.Network.Mode = "manual"

	logger, level := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stderr)
	a, err := app.New(cfg, logger.With("platform", platform), level)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", platform, err)
	}
	a.Status.Set(false)

	return &QueueService{app: a, platform: platform}, nil
}

// Start begins replaying when online. Calling Start on a running service
// is a no-op.
func (s *QueueService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%s: service stopped", s.platform)
	}
	if s.running {
		return nil
	}

	// The queue was read in NewQueueService, so the size is final here.
	s.app.Logger.Info("queue service started", "queued", s.app.Manager.QueueSize())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	s.running = true
	go func(done chan<- error) {
		done <- s.app.Run(ctx)
	}(s.done)
	return nil
}

// Stop waits for the current pass to finish and releases storage. The
// service cannot be restarted afterwards.
func (s *QueueService) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if !s.running {
		s.mu.Unlock()
		return s.app.Storage.Close()
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	runErr := <-done
	s.app.Logger.Info("queue service stopped")
	return errors.Join(runErr, s.app.Storage.Close())
}

// SetOnline reports the platform's connectivity state.
func (s *QueueService) SetOnline(online bool) {
	s.app.Status.Set(online)
}

func (s *QueueService) IsOnline() bool {
	return s.app.Status.IsOnline()
}

// SetSession hands over the tokens of the signed-in user. An empty access
// token signs out; queued actions then wait until a session is back.
func (s *QueueService) SetSession(accessToken, refreshToken string) {
	auth := s.app.Backend.Auth()
	if accessToken == "" {
		auth.ClearSession()
		return
	}
	auth.SetSession(backend.Session{AccessToken: accessToken, RefreshToken: refreshToken})
}

// Enqueue queues an action given its type tag and JSON payload and returns
// the action id. maxRetries <= 0 uses the default of 3.
func (s *QueueService) Enqueue(actionType, payloadJSON string, maxRetries int) (string, error) {
	return s.app.EnqueueJSON(context.Background(), actionType, payloadJSON, maxRetries)
}

func (s *QueueService) QueueSize() int {
	return s.app.Manager.QueueSize()
}

// QueueJSON returns the queued actions as a JSON array, oldest first.
func (s *QueueService) QueueJSON() string {
	data, err := json.Marshal(s.app.Manager.Queue())
	if err != nil {
		s.app.Logger.Warn("failed to encode queue", "error", err)
		return "[]"
	}
	return string(data)
}

func (s *QueueService) Clear() {
	s.app.Manager.ClearQueue(context.Background())
}

// ProcessNow runs a pass immediately and returns its summary as JSON. Hosts
// call it from background-fetch and work-manager callbacks.
func (s *QueueService) ProcessNow() string {
	res := s.app.Manager.ProcessNow(context.Background())
	data, _ := json.Marshal(struct {
		Skipped   string `json:"skipped,omitempty"`
		Attempted int    `json:"attempted"`
		Succeeded int    `json:"succeeded"`
		Retried   int    `json:"retried"`
		Dropped   int    `json:"dropped"`
		Remaining int    `json:"remaining"`
	}{string(res.Skipped), res.Attempted, res.Succeeded, res.Retried, res.Dropped, s.QueueSize()})
	return string(data)
}

// Status returns the service state as JSON.
func (s *QueueService) Status() string {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	data, _ := json.Marshal(serviceStatus{
		Running:  running,
		Online:   s.IsOnline(),
		Queued:   s.QueueSize(),
		Platform: s.platform,
	})
	return string(data)
}
