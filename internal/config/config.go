package config

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/clawinfra/confessly/internal/retry"
)

// Config is the top-level configuration
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server" toml:"server"`
	Queue   QueueConfig   `json:"queue" yaml:"queue" toml:"queue"`
	Storage StorageConfig `json:"storage" yaml:"storage" toml:"storage"`
	Retry   RetryConfig   `json:"retry" yaml:"retry" toml:"retry"`
	Backend BackendConfig `json:"backend" yaml:"backend" toml:"backend"`
	Network NetworkConfig `json:"network" yaml:"network" toml:"network"`
}

type ServerConfig struct {
	DataDir   string `json:"dataDir" yaml:"dataDir" toml:"dataDir"`
	LogLevel  string `json:"logLevel" yaml:"logLevel" toml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat" toml:"logFormat"` // "text" or "json"
}

type QueueConfig struct {
	MaxSize           int    `json:"maxSize" yaml:"maxSize" toml:"maxSize"`
	DefaultMaxRetries int    `json:"defaultMaxRetries" yaml:"defaultMaxRetries" toml:"defaultMaxRetries"`
	StorageKey        string `json:"storageKey" yaml:"storageKey" toml:"storageKey"`
	SweepSchedule     string `json:"sweepSchedule" yaml:"sweepSchedule" toml:"sweepSchedule"` // cron spec, empty disables
}

type StorageConfig struct {
	Backend       string `json:"backend" yaml:"backend" toml:"backend"` // "file", "sqlite" or "memory"
	Path          string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	EncryptionKey string `json:"encryptionKey,omitempty" yaml:"encryptionKey,omitempty" toml:"encryptionKey,omitempty"` // hex, 32 bytes
}

type RetryConfig struct {
	MaxAttempts       int     `json:"maxAttempts" yaml:"maxAttempts" toml:"maxAttempts"`
	InitialDelayMs    int     `json:"initialDelayMs" yaml:"initialDelayMs" toml:"initialDelayMs"`
	MaxDelayMs        int     `json:"maxDelayMs" yaml:"maxDelayMs" toml:"maxDelayMs"`
	BackoffMultiplier float64 `json:"backoffMultiplier" yaml:"backoffMultiplier" toml:"backoffMultiplier"`
	JitterFactor      float64 `json:"jitterFactor" yaml:"jitterFactor" toml:"jitterFactor"`
}

type BackendConfig struct {
	URL            string `json:"url" yaml:"url" toml:"url"`
	AnonKey        string `json:"anonKey" yaml:"anonKey" toml:"anonKey"`
	AccessToken    string `json:"accessToken,omitempty" yaml:"accessToken,omitempty" toml:"accessToken,omitempty"`
	RefreshToken   string `json:"refreshToken,omitempty" yaml:"refreshToken,omitempty" toml:"refreshToken,omitempty"`
	MediaBucket    string `json:"mediaBucket" yaml:"mediaBucket" toml:"mediaBucket"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds" toml:"timeoutSeconds"`
}

type NetworkConfig struct {
	Mode                 string `json:"mode" yaml:"mode" toml:"mode"` // "manual", "probe" or "mqtt"
	ProbeURL             string `json:"probeUrl,omitempty" yaml:"probeUrl,omitempty" toml:"probeUrl,omitempty"`
	ProbeIntervalSeconds int    `json:"probeIntervalSeconds" yaml:"probeIntervalSeconds" toml:"probeIntervalSeconds"`
	MQTTBroker           string `json:"mqttBroker,omitempty" yaml:"mqttBroker,omitempty" toml:"mqttBroker,omitempty"`
	MQTTClientID         string `json:"mqttClientId,omitempty" yaml:"mqttClientId,omitempty" toml:"mqttClientId,omitempty"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			DataDir:   "./data",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Queue: QueueConfig{
			MaxSize:           100,
			DefaultMaxRetries: 3,
			StorageKey:        "offline_queue",
			SweepSchedule:     "@every 5m",
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelayMs:    1000,
			MaxDelayMs:        10000,
			BackoffMultiplier: 2,
			JitterFactor:      0.1,
		},
		Backend: BackendConfig{
			MediaBucket:    "confession-media",
			TimeoutSeconds: 30,
		},
		Network: NetworkConfig{
			Mode:                 "manual",
			ProbeIntervalSeconds: 15,
		},
	}
}

// Options converts the section into retry executor options.
func (r RetryConfig) Options() retry.Options {
	opts := retry.DefaultOptions()
	opts.MaxAttempts = r.MaxAttempts
	opts.InitialDelay = time.Duration(r.InitialDelayMs) * time.Millisecond
	opts.MaxDelay = time.Duration(r.MaxDelayMs) * time.Millisecond
	opts.BackoffMultiplier = r.BackoffMultiplier
	opts.JitterFactor = r.JitterFactor
	return opts
}

func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (n NetworkConfig) ProbeInterval() time.Duration {
	return time.Duration(n.ProbeIntervalSeconds) * time.Second
}

// StoragePath is the configured storage path, or the data dir.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return c.Server.DataDir
}

// EncryptionKeyBytes decodes the storage encryption key. nil means the
// queue is stored in clear.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	if c.Storage.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Storage.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("storage.encryptionKey: %w", err)
	}
	return key, nil
}

// ProbeTarget is where the prober checks reachability: probeUrl if set,
// otherwise the backend's REST root.
func (c *Config) ProbeTarget() string {
	if c.Network.ProbeURL != "" {
		return c.Network.ProbeURL
	}
	if c.Backend.URL == "" {
		return ""
	}
	return strings.TrimRight(c.Backend.URL, "/") + "/rest/v1/"
}

// Validate returns the first invalid setting it finds.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("server.logLevel: unknown level %q", c.Server.LogLevel)
	}
	switch c.Server.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("server.logFormat: must be text or json, got %q", c.Server.LogFormat)
	}

	if c.Queue.MaxSize <= 0 {
		return fmt.Errorf("queue.maxSize: must be positive, got %d", c.Queue.MaxSize)
	}
	if c.Queue.DefaultMaxRetries <= 0 {
		return fmt.Errorf("queue.defaultMaxRetries: must be positive, got %d", c.Queue.DefaultMaxRetries)
	}
	if c.Queue.StorageKey == "" {
		return fmt.Errorf("queue.storageKey: required")
	}

	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("storage.backend: must be file, sqlite or memory, got %q", c.Storage.Backend)
	}
	if key, err := c.EncryptionKeyBytes(); err != nil {
		return err
	} else if key != nil && len(key) != 32 {
		return fmt.Errorf("storage.encryptionKey: need 32 bytes, got %d", len(key))
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.maxAttempts: must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelayMs <= 0 || c.Retry.MaxDelayMs < c.Retry.InitialDelayMs {
		return fmt.Errorf("retry: need 0 < initialDelayMs <= maxDelayMs, got %d and %d",
			c.Retry.InitialDelayMs, c.Retry.MaxDelayMs)
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoffMultiplier: must be at least 1, got %g", c.Retry.BackoffMultiplier)
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		return fmt.Errorf("retry.jitterFactor: must be within [0, 1], got %g", c.Retry.JitterFactor)
	}

	if c.Backend.URL != "" {
		if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend.url: not an absolute URL: %q", c.Backend.URL)
		}
	}
	if c.Backend.TimeoutSeconds <= 0 {
		return fmt.Errorf("backend.timeoutSeconds: must be positive, got %d", c.Backend.TimeoutSeconds)
	}

	switch c.Network.Mode {
	case "manual":
	case "probe":
		if c.ProbeTarget() == "" {
			return fmt.Errorf("network.probeUrl: required in probe mode without backend.url")
		}
		if c.Network.ProbeIntervalSeconds <= 0 {
			return fmt.Errorf("network.probeIntervalSeconds: must be positive, got %d", c.Network.ProbeIntervalSeconds)
		}
	case "mqtt":
		if c.Network.MQTTBroker == "" {
			return fmt.Errorf("network.mqttBroker: required in mqtt mode")
		}
	default:
		return fmt.Errorf("network.mode: must be manual, probe or mqtt, got %q", c.Network.Mode)
	}
	return nil
}

// decode fills cfg from data, choosing the format by file extension.
// Anything that is not YAML or TOML is read as JSON.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return json.Unmarshal(data, cfg)
	}
}

func encode(path string, cfg *Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return json.MarshalIndent(cfg, "", "  ")
	}
}

// Load reads config from a JSON, YAML or TOML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.Server.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return cfg, nil
}

// Save writes config in the format implied by the file extension
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := encode(path, c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0640)
}
