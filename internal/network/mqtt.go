package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient is the subset of the paho client the monitor drives. Tests
// substitute a fake.
type MQTTClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// MQTTMonitor derives connectivity from a persistent broker connection: the
// device is online while the realtime broker session is up.
type MQTTMonitor struct {
	client MQTTClient
	status *Status
	logger *slog.Logger
}

// NewMQTTMonitor builds a paho client for broker with auto-reconnect and
// wires its connection callbacks into status.
func NewMQTTMonitor(broker, clientID string, status *Status, logger *slog.Logger) *MQTTMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MQTTMonitor{
		status: status,
		logger: logger.With("component", "network-mqtt"),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(m.handleConnect).
		SetConnectionLostHandler(m.handleConnectionLost).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			m.logger.Debug("reconnecting to broker")
		})
	m.client = mqtt.NewClient(opts)
	return m
}

// NewMQTTMonitorWithClient wires an existing client. The caller is
// responsible for routing connect/lost callbacks to HandleConnect and
// HandleConnectionLost.
func NewMQTTMonitorWithClient(client MQTTClient, status *Status, logger *slog.Logger) *MQTTMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTMonitor{client: client, status: status, logger: logger.With("component", "network-mqtt")}
}

// HandleConnect marks the device online.
func (m *MQTTMonitor) HandleConnect() { m.handleConnect(nil) }

// HandleConnectionLost marks the device offline.
func (m *MQTTMonitor) HandleConnectionLost(err error) { m.handleConnectionLost(nil, err) }

func (m *MQTTMonitor) handleConnect(mqtt.Client) {
	m.logger.Info("broker connected")
	m.status.Set(true)
}

func (m *MQTTMonitor) handleConnectionLost(_ mqtt.Client, err error) {
	m.logger.Warn("broker connection lost", "error", err)
	m.status.Set(false)
}

// Run connects and holds the session until ctx is done.
func (m *MQTTMonitor) Run(ctx context.Context) error {
	token := m.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()
	m.client.Disconnect(250)
	m.status.Set(false)
	m.logger.Info("broker monitor stopped")
	return nil
}
