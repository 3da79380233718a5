package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	Username       string
	Password       string
	DeviceID       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// RealPublisher publishes to an actual MQTT broker. The session is opened
// lazily by Connect because the network is normally down at process start.
type RealPublisher struct {
	client paho.Client
	opts   Options
	topic  string
	system string
	log    zerolog.Logger
}

// NewRealPublisher creates a publisher for the given broker without connecting.
func NewRealPublisher(opts Options, log zerolog.Logger) *RealPublisher {
	system := SystemTopic(opts.DeviceID)
	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})

	clientID := opts.DeviceID + "-" + uuid.NewString()
	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout).
		SetWill(system, string(will), 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})

	return &RealPublisher{
		client: paho.NewClient(po),
		opts:   opts,
		topic:  EventsTopic(opts.DeviceID),
		system: system,
		log:    log.With().Str("client_id", clientID).Logger(),
	}
}

// Connect opens the session or reuses an open one. It waits at most
// ConnectTimeout or until ctx is done.
func (p *RealPublisher) Connect(ctx context.Context) error {
	if p.client.IsConnected() {
		return nil
	}

	if err := wait(ctx, p.client.Connect(), p.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("connect to broker %s: %w", p.opts.Broker, err)
	}
	p.log.Debug().Str("broker", p.opts.Broker).Msg("mqtt connected")
	return nil
}

// IsConnected reports whether the session is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// PublishRecord sends a feedback record with the configured QoS, not retained.
func (p *RealPublisher) PublishRecord(rec Record) error {
	payload, err := FormatRecord(rec)
	if err != nil {
		return fmt.Errorf("format record: %w", err)
	}

	token := p.client.Publish(p.topic, p.opts.QoS, false, payload)
	if err := wait(context.Background(), token, p.opts.PublishTimeout); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event with QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	token := p.client.Publish(p.system, 1, event.Retained, payload)
	if err := wait(context.Background(), token, p.opts.PublishTimeout); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}

var errTimeout = errors.New("timeout")

// wait blocks until token completes, timeout elapses or ctx is done.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
