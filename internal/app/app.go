// Package app assembles the offline queue from configuration. The CLI and
// the mobile bindings both build on it.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/clawinfra/confessly/internal/backend"
	"github.com/clawinfra/confessly/internal/config"
	"github.com/clawinfra/confessly/internal/dispatch"
	"github.com/clawinfra/confessly/internal/kvstore"
	"github.com/clawinfra/confessly/internal/logging"
	"github.com/clawinfra/confessly/internal/network"
	"github.com/clawinfra/confessly/internal/offline"
	"github.com/clawinfra/confessly/internal/queue"
	"github.com/clawinfra/confessly/internal/state"
)

// App holds all the runtime components
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Storage    kvstore.Storage
	Backend    *backend.Client
	Stores     *state.Registry
	Status     *network.Status
	Queue      *queue.Store
	Dispatcher *dispatch.Dispatcher
	Manager    *offline.Manager

	level *slog.LevelVar
}

// New wires every component but starts nothing. level may be nil; when set,
// ApplyConfig uses it to change the log level at runtime.
func New(cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return nil, err
	}
	storage, err := kvstore.Open(kvstore.Options{
		Backend:       cfg.Storage.Backend,
		Path:          cfg.StoragePath(),
		EncryptionKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	auth := backend.NewAuth()
	if cfg.Backend.AccessToken != "" {
		auth.SetSession(backend.Session{
			AccessToken:  cfg.Backend.AccessToken,
			RefreshToken: cfg.Backend.RefreshToken,
		})
	}
	client := backend.NewClient(backend.Config{
		URL:     cfg.Backend.URL,
		AnonKey: cfg.Backend.AnonKey,
		Timeout: cfg.Backend.Timeout(),
		Retry:   cfg.Retry.Options(),
	}, auth, logger)

	stores := state.NewRegistry()
	// Manual mode has no signal source of its own; assume connectivity until
	// told otherwise and let failed sends count against the retry budget.
	status := network.NewStatus(cfg.Network.Mode == "manual", logger)
	store := queue.NewStore(storage, queue.Config{
		MaxSize:           cfg.Queue.MaxSize,
		DefaultMaxRetries: cfg.Queue.DefaultMaxRetries,
		StorageKey:        cfg.Queue.StorageKey,
	}, logger)
	// Read the persisted queue before anyone can enqueue or replay.
	store.Load(context.Background())
	dispatcher := dispatch.New(client, stores, dispatch.Config{MediaBucket: cfg.Backend.MediaBucket}, logger)
	manager := offline.NewManager(store, status, dispatcher, offline.ManagerConfig{
		SweepSchedule: cfg.Queue.SweepSchedule,
	}, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Storage:    storage,
		Backend:    client,
		Stores:     stores,
		Status:     status,
		Queue:      store,
		Dispatcher: dispatcher,
		Manager:    manager,
		level:      level,
	}, nil
}

// Run starts the manager and the configured connectivity source and blocks
// until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.Manager.Start(ctx); err != nil {
		return err
	}
	defer a.Manager.Stop()

	g, ctx := errgroup.WithContext(ctx)
	switch a.Config.Network.Mode {
	case "probe":
		prober := network.NewProber(a.Config.ProbeTarget(), a.Config.Network.ProbeInterval(), a.Status, a.Logger)
		g.Go(func() error { return prober.Run(ctx) })
	case "mqtt":
		clientID := a.Config.Network.MQTTClientID
		if clientID == "" {
			clientID = "confessly-" + a.Config.Queue.StorageKey
		}
		monitor := network.NewMQTTMonitor(a.Config.Network.MQTTBroker, clientID, a.Status, a.Logger)
		g.Go(func() error { return monitor.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ApplyConfig applies the hot-reloadable parts of cfg.
func (a *App) ApplyConfig(cfg *config.Config) {
	if a.level != nil {
		a.level.Set(logging.ParseLevel(cfg.Server.LogLevel))
	}
	a.Backend.SetRetryOptions(cfg.Retry.Options())
	if cfg.Backend.AccessToken != "" {
		a.Backend.Auth().SetSession(backend.Session{
			AccessToken:  cfg.Backend.AccessToken,
			RefreshToken: cfg.Backend.RefreshToken,
		})
	} else {
		a.Backend.Auth().ClearSession()
	}
	a.Logger.Info("runtime config applied", "log_level", cfg.Server.LogLevel)
}

// Close stops the manager and releases storage.
func (a *App) Close() error {
	a.Manager.Stop()
	return a.Storage.Close()
}

// ParsePayload decodes payloadJSON for actionType and runs the checks that
// must pass before an action is accepted into the queue.
func ParsePayload(actionType, payloadJSON string) (queue.Payload, error) {
	t := queue.ActionType(actionType)
	if !t.Valid() {
		return nil, fmt.Errorf("unknown action type %q", actionType)
	}
	if payloadJSON == "" {
		payloadJSON = "{}"
	}
	p, err := queue.DecodePayload(t, json.RawMessage(payloadJSON))
	if err != nil {
		return nil, err
	}

	switch v := p.(type) {
	case queue.CreateConfession:
		err = dispatch.ValidateConfession(v)
	case queue.CreateReply:
		err = dispatch.ValidateReply(v)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// EnqueueJSON parses and enqueues an action. maxRetries <= 0 uses the
// configured default.
func (a *App) EnqueueJSON(ctx context.Context, actionType, payloadJSON string, maxRetries int) (string, error) {
	p, err := ParsePayload(actionType, payloadJSON)
	if err != nil {
		return "", err
	}
	return a.Manager.Enqueue(ctx, p, queue.WithMaxRetries(maxRetries)), nil
}
