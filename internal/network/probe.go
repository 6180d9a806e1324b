package network

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Prober decides connectivity by polling an HTTP endpoint. Any response,
// even an error status, proves the network path works; only transport
// failures count as offline.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	status   *Status
	logger   *slog.Logger
}

// NewProber creates a prober that reports into status.
func NewProber(url string, interval time.Duration, status *Status, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		status:   status,
		logger:   logger.With("component", "network-probe"),
	}
}

// Check runs one probe, updates the status and returns the result.
func (p *Prober) Check(ctx context.Context) bool {
	online := p.reachable(ctx)
	p.status.Set(online)
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	p.logger.Info("network prober started", "url", p.url, "interval", p.interval)
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("network prober stopped")
			return nil
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Prober) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warn("invalid probe request", "url", p.url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "error", err)
		return false
	}
	resp.Body.Close() //nolint:errcheck
	return true
}
