package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher keeps a live Config in step with its file. It polls the file,
// reloads when the content actually changes and hands each reload that
// applied something to apply.
type Watcher struct {
	cfg      *Config
	path     string
	interval time.Duration
	logger   *slog.Logger
	apply    func(*ReloadResult)

	stop chan struct{}
	once sync.Once

	// Touched only by the polling goroutine.
	lastMod time.Time
	lastSum []byte
}

// NewWatcher watches path on behalf of cfg, which should have been loaded
// from it. interval <= 0 polls every two seconds. apply may be nil.
func NewWatcher(cfg *Config, path string, interval time.Duration, logger *slog.Logger, apply func(*ReloadResult)) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		cfg:      cfg,
		path:     path,
		interval: interval,
		logger:   logger.With("component", "config-watcher"),
		apply:    apply,
		stop:     make(chan struct{}),
	}
}

// Run polls until ctx ends or Stop is called. It always returns nil so it
// can share an errgroup with the daemon's other loops.
func (w *Watcher) Run(ctx context.Context) error {
	w.lastMod, w.lastSum = w.fingerprint()
	w.logger.Debug("watching config", "path", w.path, "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
}

// ReloadNow reloads the file immediately, as on SIGHUP.
func (w *Watcher) ReloadNow() (*ReloadResult, error) {
	result, err := w.cfg.Reload(w.path)
	if err != nil {
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return nil, err
	}
	result.LogResult(w.logger)
	if w.apply != nil && len(result.Applied) > 0 {
		w.apply(result)
	}
	return result, nil
}

func (w *Watcher) fingerprint() (time.Time, []byte) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, nil
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return info.ModTime(), nil
	}
	sum := sha256.Sum256(data)
	return info.ModTime(), sum[:]
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("cannot stat config file", "path", w.path, "error", err)
		return
	}
	if info.ModTime().Equal(w.lastMod) {
		return
	}

	// Editors often rewrite a file without changing it.
	mod, sum := w.fingerprint()
	w.lastMod = mod
	if sum == nil || bytes.Equal(sum, w.lastSum) {
		return
	}
	w.lastSum = sum
	w.ReloadNow()
}
