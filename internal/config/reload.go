package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// ReloadResult describes what changed during a config reload.
type ReloadResult struct {
	Changed []string // every field that differs
	Applied []string // hot fields copied into the live config
	Skipped []string // fields that need a restart to take effect
}

// reloadField compares one section of two configs. Hot fields are copied
// into the live config when they differ; the rest are only reported.
type reloadField struct {
	name    string
	differs func(old, new *Config) bool
	apply   func(old, new *Config) // nil for restart-only fields
}

var reloadFields = []reloadField{
	{name: "Server.DataDir", differs: func(o, n *Config) bool { return o.Server.DataDir != n.Server.DataDir }},
	{name: "Server.LogFormat", differs: func(o, n *Config) bool { return o.Server.LogFormat != n.Server.LogFormat }},
	{
		name:    "Server.LogLevel",
		differs: func(o, n *Config) bool { return o.Server.LogLevel != n.Server.LogLevel },
		apply:   func(o, n *Config) { o.Server.LogLevel = n.Server.LogLevel },
	},
	{name: "Queue", differs: func(o, n *Config) bool { return o.Queue != n.Queue }},
	{name: "Storage", differs: func(o, n *Config) bool { return o.Storage != n.Storage }},
	{name: "Network", differs: func(o, n *Config) bool { return o.Network != n.Network }},
	{
		name:    "Retry",
		differs: func(o, n *Config) bool { return o.Retry != n.Retry },
		apply:   func(o, n *Config) { o.Retry = n.Retry },
	},
	{name: "Backend.URL", differs: func(o, n *Config) bool { return o.Backend.URL != n.Backend.URL }},
	{name: "Backend.AnonKey", differs: func(o, n *Config) bool { return o.Backend.AnonKey != n.Backend.AnonKey }},
	{
		name: "Backend.Session",
		differs: func(o, n *Config) bool {
			return o.Backend.AccessToken != n.Backend.AccessToken || o.Backend.RefreshToken != n.Backend.RefreshToken
		},
		apply: func(o, n *Config) {
			o.Backend.AccessToken = n.Backend.AccessToken
			o.Backend.RefreshToken = n.Backend.RefreshToken
		},
	},
	{
		name: "Backend.MediaBucket",
		differs: func(o, n *Config) bool {
			return o.Backend.MediaBucket != n.Backend.MediaBucket
		},
	},
	{
		name: "Backend.TimeoutSeconds",
		differs: func(o, n *Config) bool {
			return o.Backend.TimeoutSeconds != n.Backend.TimeoutSeconds
		},
	},
}

// mu guards in-place updates made by Reload.
var mu sync.RWMutex

// Snapshot returns a copy of c that is safe to read while a reload runs.
func (c *Config) Snapshot() Config {
	mu.RLock()
	defer mu.RUnlock()
	return *c
}

// Reload re-reads path and copies the hot-reloadable fields into c. An
// unreadable or invalid file leaves c untouched.
func (c *Config) Reload(path string) (*ReloadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config for reload: %w", err)
	}

	next := DefaultConfig()
	if err := decode(path, data, next); err != nil {
		return nil, fmt.Errorf("parse config for reload: %w", err)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config for reload: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	result := &ReloadResult{}
	for _, f := range reloadFields {
		if !f.differs(c, next) {
			continue
		}
		result.Changed = append(result.Changed, f.name)
		if f.apply == nil {
			result.Skipped = append(result.Skipped, f.name)
			continue
		}
		f.apply(c, next)
		result.Applied = append(result.Applied, f.name)
	}
	return result, nil
}

func (r *ReloadResult) LogResult(logger *slog.Logger) {
	if len(r.Changed) == 0 {
		logger.Info("config reload: no changes detected")
		return
	}
	logger.Info("config reloaded", "applied", r.Applied)
	if len(r.Skipped) > 0 {
		logger.Warn("config changes need a restart", "fields", r.Skipped)
	}
}

// IsRestartRequired reports whether a change to field only takes effect
// after a restart. Unknown fields report false.
func IsRestartRequired(field string) bool {
	for _, f := range reloadFields {
		if f.name == field {
			return f.apply == nil
		}
	}
	return false
}

// HotReloadableFields lists the fields Reload applies in place.
func HotReloadableFields() []string {
	var names []string
	for _, f := range reloadFields {
		if f.apply != nil {
			names = append(names, f.name)
		}
	}
	return names
}
