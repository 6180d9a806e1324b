package offline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/clawinfra/confessly/internal/network"
	"github.com/clawinfra/confessly/internal/queue"
)

// DefaultSweepSchedule retries leftovers even when connectivity never
// flaps, e.g. after the user signs in.
const DefaultSweepSchedule = "@every 5m"

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// SweepSchedule is a cron spec for periodic passes. Empty disables it.
	SweepSchedule string
}

// Manager is the app-facing side of the offline queue: enqueue, inspect,
// clear, and automatic replay when connectivity returns.
type Manager struct {
	store     *queue.Store
	monitor   network.Monitor
	processor *Processor
	cfg       ManagerConfig
	logger    *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	cron        *cron.Cron
}

func NewManager(store *queue.Store, monitor network.Monitor, dispatcher Dispatcher, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		monitor:   monitor,
		processor: NewProcessor(store, monitor, dispatcher, logger),
		cfg:       cfg,
		logger:    logger.With("component", "offline"),
	}
}

// Processor exposes the underlying processor, mainly for OnPass hooks.
func (m *Manager) Processor() *Processor { return m.processor }

// Start loads the persisted queue unless that already happened, begins
// listening for connectivity and kicks off a pass if already online.
// Passes triggered afterwards run under ctx until Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return fmt.Errorf("offline: manager already started")
	}

	var sweeper *cron.Cron
	if m.cfg.SweepSchedule != "" {
		sweeper = cron.New()
		if _, err := sweeper.AddFunc(m.cfg.SweepSchedule, m.sweep); err != nil {
			return fmt.Errorf("offline: sweep schedule %q: %w", m.cfg.SweepSchedule, err)
		}
	}

	m.store.Load(ctx)
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.unsubscribe = m.monitor.OnChange(func(online bool) {
		if online {
			m.trigger()
		}
	})
	if sweeper != nil {
		sweeper.Start()
		m.cron = sweeper
	}

	m.logger.Info("offline manager started",
		"queued", m.store.Size(),
		"online", m.monitor.IsOnline(),
		"sweep", m.cfg.SweepSchedule)

	if m.monitor.IsOnline() {
		m.processor.Trigger(m.ctx)
	}
	return nil
}

// Stop unsubscribes from the monitor, stops the sweep and waits for any
// in-flight pass.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.unsubscribe()
	cancel := m.cancel
	sweeper := m.cron
	m.cancel, m.unsubscribe, m.cron = nil, nil, nil
	m.mu.Unlock()

	if sweeper != nil {
		<-sweeper.Stop().Done()
	}
	cancel()
	m.processor.Wait()
	m.logger.Info("offline manager stopped", "queued", m.store.Size())
}

func (m *Manager) runContext() (context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil || m.cancel == nil {
		return nil, false
	}
	return m.ctx, true
}

func (m *Manager) trigger() {
	if ctx, ok := m.runContext(); ok {
		m.processor.Trigger(ctx)
	}
}

func (m *Manager) sweep() {
	m.logger.Debug("scheduled sweep")
	m.trigger()
}

// Enqueue queues an action and, when online, starts replay right away.
func (m *Manager) Enqueue(ctx context.Context, p queue.Payload, opts ...queue.EnqueueOption) string {
	id := m.store.Enqueue(ctx, p, opts...)
	if m.monitor.IsOnline() {
		m.trigger()
	}
	return id
}

func (m *Manager) IsOnline() bool {
	return m.monitor.IsOnline()
}

func (m *Manager) QueueSize() int {
	return m.store.Size()
}

// Queue returns a copy of the queued actions, oldest first.
func (m *Manager) Queue() []queue.QueuedAction {
	return m.store.Snapshot()
}

// OnNetworkChange forwards connectivity transitions to fn.
func (m *Manager) OnNetworkChange(fn func(online bool)) (unsubscribe func()) {
	return m.monitor.OnChange(fn)
}

func (m *Manager) ClearQueue(ctx context.Context) {
	m.store.Clear(ctx)
	m.logger.Info("offline queue cleared")
}

// ProcessNow runs a pass synchronously, regardless of whether Start was
// called.
func (m *Manager) ProcessNow(ctx context.Context) PassResult {
	m.store.Load(ctx)
	return m.processor.Process(ctx)
}
