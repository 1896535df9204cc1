package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/photobooth/internal/logger"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Prefix   string

	// OnStatus, if set, is called whenever the connection comes up or drops.
	OnStatus func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. While the connection is
// down messages are kept in an outbox and replayed once it returns.
type RealPublisher struct {
	client paho.Client
	prefix string
	status func(bool)

	mu        sync.Mutex
	connected bool
	outbox    *outbox
}

// NewRealPublisher creates a publisher for the given broker. The broker
// being unreachable at startup is not an error; the client keeps retrying
// in the background and messages queue meanwhile.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not set")
	}
	if o.ClientID == "" {
		o.ClientID = "photobooth"
	}

	p := newPublisher(nil, o.Prefix, o.OnStatus)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(SystemTopic(p.prefix), will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleConnectionLost(err) })

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.WithComponent("mqtt").Warn().Str("broker", o.Broker).
			Msg("broker not reachable yet, retrying in background")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(client paho.Client, prefix string, status func(bool)) *RealPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RealPublisher{
		client: client,
		prefix: prefix,
		status: status,
		outbox: newOutbox(OutboxSize),
	}
}

// Publish sends a session event. QoS 0, not retained.
func (p *RealPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	p.send(pending{topic: EventsTopic(p.prefix), payload: payload})
	return nil
}

// PublishSystem sends a system lifecycle event. QoS 1 so that startup and
// shutdown snapshots reach the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	p.send(pending{topic: SystemTopic(p.prefix), payload: payload, qos: 1, retained: event.Retained})
	return nil
}

// Flush waits up to timeout for a system message to be acknowledged. Used
// on shutdown before Close.
func (p *RealPublisher) Flush(event SystemEvent, timeout time.Duration) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	if !p.IsConnected() {
		return fmt.Errorf("publish system: not connected")
	}
	token := p.client.Publish(SystemTopic(p.prefix), 1, event.Retained, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (p *RealPublisher) send(m pending) {
	p.mu.Lock()
	if !p.connected {
		p.outbox.add(m)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.publish(m)
}

// publish hands m to the client and checks the token off the caller's
// goroutine so the run loop never waits on the network.
func (p *RealPublisher) publish(m pending) {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	go func() {
		log := logger.WithComponent("mqtt")
		if !token.WaitTimeout(publishTimeout) {
			log.Warn().Str("topic", m.topic).Msg("publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", m.topic).Msg("publish failed")
		}
	}()
}

func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	p.connected = true
	queued, dropped := p.outbox.take()
	p.mu.Unlock()

	log := logger.WithComponent("mqtt")
	log.Info().Int("queued", len(queued)).Int("dropped", dropped).Msg("connected to broker")
	for _, m := range queued {
		p.publish(m)
	}
	if p.status != nil {
		p.status(true)
	}
}

func (p *RealPublisher) handleConnectionLost(err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	logger.WithComponent("mqtt").Warn().Err(err).Msg("connection to broker lost")
	if p.status != nil {
		p.status(false)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Queued reports the number of messages waiting for a connection.
func (p *RealPublisher) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
