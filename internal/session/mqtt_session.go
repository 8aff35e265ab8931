package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/grid-agent/internal/models"
	pkgmqtt "github.com/benmeehan/grid-agent/pkg/mqtt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	disconnectQuiesceMs = 250
	unsubscribeTimeout  = time.Second
	subscribeTimeout    = 10 * time.Second
)

// MQTTClient is an MQTT client that connects itself to a broker.
type MQTTClient interface {
	pkgmqtt.MQTTClient
	Initialize(broker, clientID, caCertPath string, onConnect func(), onConnectionLost func(error)) error
}

// MQTTConfig holds the broker coordinates and topic layout of an MQTTSession.
type MQTTConfig struct {
	Broker      string // e.g. tcp://10.0.0.5:1883
	ClientID    string
	CACertPath  string
	TopicPrefix string
	AgentID     string
	QOS         byte
}

// MQTTSession exchanges JSON messages with the control plane over per-agent
// topics: requests are read from <prefix>/<agent>/requests, replies and
// notifications are published to sibling topics.
type MQTTSession struct {
	// Configuration Fields
	cfg MQTTConfig

	// Dependencies
	client MQTTClient
	logger zerolog.Logger

	// Internal state management
	mu     sync.Mutex
	open   bool
	linkUp atomic.Bool
}

// NewMQTTSession creates a session that uses client once opened.
func NewMQTTSession(client MQTTClient, cfg MQTTConfig, logger zerolog.Logger) *MQTTSession {
	return &MQTTSession{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("broker", cfg.Broker).Logger(),
	}
}

// Open connects to the broker and subscribes to the request topic. The
// subscription is renewed after every automatic reconnect.
func (s *MQTTSession) Open(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return ErrAlreadyOpen
	}

	topic, _ := Topic(s.cfg.TopicPrefix, s.cfg.AgentID, models.MessageRequest)
	first := make(chan error, 1)
	var reconnect atomic.Bool
	onConnect := func() {
		err := s.subscribeRequests(topic, handler)
		if !reconnect.Swap(true) {
			first <- err
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to resubscribe after reconnect")
			return
		}
		s.logger.Info().Str("topic", topic).Msg("Resubscribed after reconnect")
	}
	onConnectionLost := func(err error) {
		s.linkUp.Store(false)
		s.logger.Warn().Err(err).Msg("Lost connection to broker, reconnecting")
	}

	if err := s.client.Initialize(s.cfg.Broker, s.cfg.ClientID, s.cfg.CACertPath, onConnect, onConnectionLost); err != nil {
		return fmt.Errorf("connect to broker %s: %w", s.cfg.Broker, err)
	}

	var err error
	select {
	case err = <-first:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.client.Disconnect(disconnectQuiesceMs)
		s.linkUp.Store(false)
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	s.open = true
	s.logger.Info().Str("topic", topic).Msg("Control plane session opened")
	return nil
}

func (s *MQTTSession) subscribeRequests(topic string, handler Handler) error {
	token := s.client.Subscribe(topic, s.cfg.QOS, func(_ mqtt.Client, msg mqtt.Message) {
		var req models.RoutingRequest
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			s.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("Dropping malformed routing request")
			return
		}
		handler(req)
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("timed out after %s", subscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.linkUp.Store(true)
	return nil
}

// Alive reports whether the session is open and the broker link is up.
func (s *MQTTSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && s.linkUp.Load()
}

// Send publishes payload as JSON on the topic matching kind.
func (s *MQTTSession) Send(ctx context.Context, kind models.MessageType, payload any) error {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open {
		return ErrNotOpen
	}

	topic, err := Topic(s.cfg.TopicPrefix, s.cfg.AgentID, kind)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	if err := waitToken(ctx, s.client.Publish(topic, s.cfg.QOS, false, data)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close unsubscribes and disconnects from the broker.
func (s *MQTTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrNotOpen
	}
	s.open = false
	s.linkUp.Store(false)

	topic, _ := Topic(s.cfg.TopicPrefix, s.cfg.AgentID, models.MessageRequest)
	if token := s.client.Unsubscribe(topic); !token.WaitTimeout(unsubscribeTimeout) {
		s.logger.Warn().Str("topic", topic).Msg("Timed out unsubscribing")
	} else if err := token.Error(); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to unsubscribe")
	}
	s.client.Disconnect(disconnectQuiesceMs)

	s.logger.Info().Msg("Control plane session closed")
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
