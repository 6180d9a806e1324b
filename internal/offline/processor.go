// Package offline replays queued actions against the backend whenever the
// device is online, and exposes the queue to the rest of the app.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clawinfra/confessly/internal/network"
	"github.com/clawinfra/confessly/internal/queue"
)

// Dispatcher applies one queued action to the backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, action queue.QueuedAction) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, action queue.QueuedAction) error

func (f DispatchFunc) Dispatch(ctx context.Context, action queue.QueuedAction) error {
	return f(ctx, action)
}

// SkipReason says why a pass did not run.
type SkipReason string

const (
	SkipNone    SkipReason = ""
	SkipBusy    SkipReason = "already processing"
	SkipOffline SkipReason = "offline"
	SkipEmpty   SkipReason = "queue empty"
)

// PassResult summarises one drain pass.
type PassResult struct {
	Skipped   SkipReason
	Attempted int
	Succeeded int
	Retried   int
	Dropped   int
	Duration  time.Duration
}

// Ran reports whether the pass actually processed the queue.
func (r PassResult) Ran() bool { return r.Skipped == SkipNone }

func (r PassResult) String() string {
	if !r.Ran() {
		return "skipped: " + string(r.Skipped)
	}
	return fmt.Sprintf("attempted=%d succeeded=%d retried=%d dropped=%d in %s",
		r.Attempted, r.Succeeded, r.Retried, r.Dropped, r.Duration.Round(time.Millisecond))
}

// Processor drains the queue one action at a time. At most one pass runs at
// any moment; overlapping requests are skipped, not queued.
type Processor struct {
	store      *queue.Store
	monitor    network.Monitor
	dispatcher Dispatcher
	logger     *slog.Logger

	// OnPass, when set, observes every completed pass. Set before use.
	OnPass func(PassResult)

	mu         sync.Mutex
	processing bool
	wg         sync.WaitGroup
}

func NewProcessor(store *queue.Store, monitor network.Monitor, dispatcher Dispatcher, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:      store,
		monitor:    monitor,
		dispatcher: dispatcher,
		logger:     logger.With("component", "processor"),
	}
}

// Processing reports whether a pass is in flight.
func (p *Processor) Processing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processing
}

// begin checks the guards and claims the processing flag in one step.
func (p *Processor) begin() SkipReason {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.processing:
		return SkipBusy
	case !p.monitor.IsOnline():
		return SkipOffline
	case p.store.Size() == 0:
		return SkipEmpty
	}
	p.processing = true
	return SkipNone
}

func (p *Processor) end() {
	p.mu.Lock()
	p.processing = false
	p.mu.Unlock()
}

// Process runs one pass synchronously.
func (p *Processor) Process(ctx context.Context) PassResult {
	if reason := p.begin(); reason != SkipNone {
		p.logger.Debug("pass skipped", "reason", reason)
		return PassResult{Skipped: reason}
	}
	defer p.end()
	return p.pass(ctx)
}

// Trigger starts a pass in the background. It reports false if the guards
// refused the pass.
func (p *Processor) Trigger(ctx context.Context) bool {
	reason := p.begin()
	if reason != SkipNone {
		p.logger.Debug("trigger ignored", "reason", reason)
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.end()
		p.pass(ctx)
	}()
	return true
}

// Wait blocks until background passes started by Trigger have finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// pass replays a snapshot of the queue in FIFO order. Actions enqueued
// while it runs wait for the next pass. Cancelling ctx stops the pass
// between actions; whatever is left stays queued. A dispatch that fails
// because ctx was cancelled is not counted against the action's retries.
func (p *Processor) pass(ctx context.Context) PassResult {
	start := time.Now()
	actions := p.store.Snapshot()
	p.logger.Info("processing offline queue", "actions", len(actions))

	// Queue writes must land even when ctx is cancelled during shutdown.
	storeCtx := context.WithoutCancel(ctx)

	var res PassResult
	for _, action := range actions {
		if ctx.Err() != nil {
			p.logger.Info("pass interrupted", "remaining", len(actions)-res.Attempted)
			break
		}
		res.Attempted++

		logger := p.logger.With("action_id", action.ID, "type", action.Type)
		err := p.dispatch(ctx, action)
		if err == nil {
			p.store.Remove(storeCtx, action.ID)
			res.Succeeded++
			logger.Debug("action replayed")
			continue
		}
		if ctx.Err() != nil {
			res.Attempted--
			logger.Info("dispatch interrupted, action stays queued", "error", err)
			break
		}

		count, ok := p.store.IncrementRetry(storeCtx, action.ID)
		if !ok {
			// Cleared while we were dispatching.
			continue
		}
		if count >= action.MaxRetries {
			p.store.Remove(storeCtx, action.ID)
			res.Dropped++
			logger.Warn("permanent failure, dropping action",
				"retry_count", count,
				"max_retries", action.MaxRetries,
				"error", err)
			continue
		}
		res.Retried++
		logger.Debug("action failed, will retry",
			"retry_count", count,
			"max_retries", action.MaxRetries,
			"error", err)
	}

	if err := p.store.Persist(storeCtx); err != nil {
		p.logger.Warn("failed to persist queue after pass", "error", err)
	}

	res.Duration = time.Since(start)
	p.logger.Info("offline queue pass complete",
		"succeeded", res.Succeeded,
		"retried", res.Retried,
		"dropped", res.Dropped,
		"remaining", p.store.Size())
	if p.OnPass != nil {
		p.OnPass(res)
	}
	return res
}

// dispatch turns a dispatcher panic into an ordinary failure.
func (p *Processor) dispatch(ctx context.Context, action queue.QueuedAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()
	return p.dispatcher.Dispatch(ctx, action)
}
