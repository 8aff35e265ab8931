package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/benmeehan/grid-agent/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsReadLimit        = 1 << 20
)

// WSConfig locates the control plane's WebSocket endpoint.
type WSConfig struct {
	Address string // host:port
	Path    string
	AgentID string
}

// WSSession exchanges models.Envelope frames with the control plane over a
// single WebSocket connection.
type WSSession struct {
	// Configuration Fields
	cfg WSConfig

	// Dependencies
	logger zerolog.Logger

	// Internal state management
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
}

// NewWSSession creates a session that dials cfg on Open.
func NewWSSession(cfg WSConfig, logger zerolog.Logger) *WSSession {
	return &WSSession{
		cfg:    cfg,
		logger: logger.With().Str("address", cfg.Address).Logger(),
	}
}

func (s *WSSession) url() string {
	u := url.URL{
		Scheme: "ws",
		Host:   s.cfg.Address,
		Path:   "/" + strings.TrimPrefix(s.cfg.Path, "/"),
	}
	q := u.Query()
	q.Set("agent_id", s.cfg.AgentID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Open dials the control plane and starts reading request envelopes.
func (s *WSSession) Open(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return ErrAlreadyOpen
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, s.url(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed: status=%d, err=%w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)

	s.conn = conn
	s.done = make(chan struct{})
	done := s.done
	utils.SafeGo(s.logger, "ws-read-pump", func() {
		defer close(done)
		s.readPump(conn, handler)
	})

	s.logger.Info().Msg("Control plane session opened")
	return nil
}

func (s *WSSession) readPump(conn *websocket.Conn, handler Handler) {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.mu.Lock()
			closing := s.conn != conn
			s.mu.Unlock()
			if closing {
				s.logger.Debug().Err(err).Msg("WebSocket read pump stopped")
			} else {
				s.logger.Warn().Err(err).Msg("Control plane connection lost")
			}
			return
		}

		if env.Type != models.MessageRequest {
			s.logger.Debug().Str("type", string(env.Type)).Msg("Ignoring unexpected envelope")
			continue
		}
		var req models.RoutingRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			s.logger.Error().Err(err).Msg("Dropping malformed routing request")
			continue
		}
		handler(req)
	}
}

// Send writes payload wrapped in an envelope of the given kind.
func (s *WSSession) Send(ctx context.Context, kind models.MessageType, payload any) error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}
	select {
	case <-done:
		return ErrLost
	default:
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(models.Envelope{Type: kind, Payload: raw}); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

// Alive reports whether the session is open and the read pump is running.
func (s *WSSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close sends a close frame, closes the connection and waits for the read
// pump to exit.
func (s *WSSession) Close() error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.conn, s.done = nil, nil
	s.mu.Unlock()

	if conn == nil {
		return ErrNotOpen
	}

	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	err := conn.Close()
	<-done
	s.logger.Info().Msg("Control plane session closed")
	return err
}
