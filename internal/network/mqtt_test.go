package network

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTTClient struct {
	mu           sync.Mutex
	connectErr   error
	onConnect    func()
	disconnected bool
}

func (c *fakeMQTTClient) Connect() mqtt.Token {
	if c.connectErr == nil && c.onConnect != nil {
		c.onConnect()
	}
	return newDoneToken(c.connectErr)
}

func (c *fakeMQTTClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeMQTTClient) IsConnected() bool { return false }

func TestMQTTMonitorHandlers(t *testing.T) {
	status := NewStatus(false, slog.Default())
	m := NewMQTTMonitorWithClient(&fakeMQTTClient{}, status, slog.Default())

	m.HandleConnect()
	if !status.IsOnline() {
		t.Error("expected online after connect")
	}
	m.HandleConnectionLost(errors.New("eof"))
	if status.IsOnline() {
		t.Error("expected offline after connection lost")
	}
}

func TestMQTTMonitorRunConnectsAndDisconnects(t *testing.T) {
	status := NewStatus(false, slog.Default())
	client := &fakeMQTTClient{}
	m := NewMQTTMonitorWithClient(client, status, slog.Default())
	client.onConnect = m.HandleConnect

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !status.IsOnline() {
		select {
		case <-deadline:
			t.Fatal("never went online")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if !client.disconnected {
		t.Error("expected Disconnect on stop")
	}
	if status.IsOnline() {
		t.Error("expected offline after stop")
	}
}

func TestMQTTMonitorRunConnectError(t *testing.T) {
	status := NewStatus(false, slog.Default())
	m := NewMQTTMonitorWithClient(&fakeMQTTClient{connectErr: errors.New("refused")}, status, slog.Default())
	if err := m.Run(context.Background()); err == nil {
		t.Error("expected connect error")
	}
}

func TestNewMQTTMonitorBuildsClient(t *testing.T) {
	m := NewMQTTMonitor("tcp://127.0.0.1:1883", "confessly-test", NewStatus(false, nil), nil)
	if m.client == nil {
		t.Fatal("expected paho client")
	}
	if m.client.IsConnected() {
		t.Error("client should not connect before Run")
	}
}
