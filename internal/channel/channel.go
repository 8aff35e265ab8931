package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/benmeehan/grid-agent/internal/agenterr"
	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/forward"
	"github.com/rs/zerolog"
)

// Dialer opens the transport connection to the forwarded local port.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds the per-component settings of a Channel.
type Config struct {
	Component  string
	RemotePort int
	Retry      RetryPolicy
	IOTimeout  time.Duration
	Dial       Dialer
	Codec      Codec
}

// Handshake is the validation exchange run before a channel carries traffic.
// A nil Request disables validation. Match, when set, pairs every reply with
// the request it answers; a reply that does not match is a transport failure.
type Handshake[Req, Resp any] struct {
	Request func() Req
	Accept  func(Resp) bool
	Match   func(Req, Resp) bool
}

var (
	errMalformedFrame  = errors.New("malformed response frame")
	errMismatchedReply = errors.New("reply does not answer the request")
)

// Channel is a retrying request/response client for one companion process on
// one device. Requests are serialized over a single connection which is
// re-established after transport failures.
type Channel[Req, Resp any] struct {
	// Configuration Fields
	cfg       Config
	handshake Handshake[Req, Resp]

	// Dependencies
	fwd    *forward.Service
	logger zerolog.Logger

	// Internal state management
	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	validated bool
	rejected  bool
	stopped   bool
	stopOnce  sync.Once

	// Cancelled by Stop; aborts waits between attempts
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a channel that owns fwd. Nothing is dialed until the first
// Connect or Request.
func New[Req, Resp any](fwd *forward.Service, cfg Config, handshake Handshake[Req, Resp], logger zerolog.Logger) *Channel[Req, Resp] {
	if cfg.Retry.Attempts == 0 && cfg.Retry.Backoff == nil {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = constants.DefaultIOTimeout
	}
	if cfg.Dial == nil {
		dialer := &net.Dialer{Timeout: cfg.IOTimeout}
		cfg.Dial = dialer.DialContext
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Channel[Req, Resp]{
		cfg:       cfg,
		handshake: handshake,
		fwd:       fwd,
		validated: handshake.Request == nil,
		logger: logger.With().
			Str("device_id", fwd.DeviceID()).
			Str("component", cfg.Component).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Component returns the name of the companion this channel talks to.
func (c *Channel[Req, Resp]) Component() string {
	return c.cfg.Component
}

// Connect forwards the remote port and opens the connection, retrying within
// the retry policy. Forwarding failures are returned immediately.
func (c *Channel[Req, Resp]) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return c.stoppedErr()
	}

	attempts := c.cfg.Retry.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.connectOnce()
		if err == nil {
			return nil
		}
		if errors.Is(err, agenterr.ErrForwardingFailed) {
			return err
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Failed to connect to component")
		if attempt < attempts && !c.wait(attempt) {
			return agenterr.Wrap(agenterr.KindCommunicationFailed, c.fwd.DeviceID(), c.cfg.Component, c.ctx.Err())
		}
	}

	return c.exhausted(attempts, lastErr)
}

// Request sends req and returns the single response read back for it. The
// first request on a fresh channel runs the validation handshake.
func (c *Channel[Req, Resp]) Request(req Req) (Resp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero Resp
	if c.stopped {
		return zero, c.stoppedErr()
	}
	if c.rejected {
		return zero, agenterr.New(agenterr.KindComponentValidationFailed, c.fwd.DeviceID(), c.cfg.Component,
			"component failed validation and must be re-validated")
	}
	if !c.validated {
		if err := c.validateLocked(); err != nil {
			return zero, err
		}
	}
	return c.exchange(req)
}

// Validate runs the handshake again, clearing a previous validation failure
// when it succeeds.
func (c *Channel[Req, Resp]) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return c.stoppedErr()
	}
	if c.handshake.Request == nil {
		return nil
	}
	c.rejected = false
	c.validated = false
	return c.validateLocked()
}

// Invalidate drops the connection and forces a new handshake before the next
// request, for example after the companion was restarted.
func (c *Channel[Req, Resp]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.disconnect()
	if c.handshake.Request != nil {
		c.validated = false
	}
}

// Stop closes the connection and stops the owned forwarding service.
func (c *Channel[Req, Resp]) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()

		c.stopped = true
		c.disconnect()
		c.fwd.Stop(context.Background())
		c.logger.Debug().Msg("Component channel stopped")
	})
}

func (c *Channel[Req, Resp]) validateLocked() error {
	resp, err := c.exchange(c.handshake.Request())
	if err != nil {
		if errors.Is(err, agenterr.ErrForwardingFailed) {
			return err
		}
		c.rejected = true
		c.logger.Error().Err(err).Msg("Component validation failed")
		return agenterr.Wrap(agenterr.KindComponentValidationFailed, c.fwd.DeviceID(), c.cfg.Component, err)
	}
	if c.handshake.Accept != nil && !c.handshake.Accept(resp) {
		c.rejected = true
		c.disconnect()
		c.logger.Error().Msg("Component answered the handshake with an unexpected reply")
		return agenterr.New(agenterr.KindComponentValidationFailed, c.fwd.DeviceID(), c.cfg.Component,
			"unexpected handshake reply")
	}

	c.validated = true
	c.logger.Info().Msg("Component validated")
	return nil
}

func (c *Channel[Req, Resp]) exchange(req Req) (Resp, error) {
	var zero Resp

	frame, err := c.cfg.Codec.Marshal(req)
	if err != nil {
		return zero, agenterr.Wrap(agenterr.KindCommunicationFailed, c.fwd.DeviceID(), c.cfg.Component,
			fmt.Errorf("encode request: %w", err))
	}
	frame = append(frame, '\n')

	attempts := c.cfg.Retry.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.roundTrip(req, frame)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, agenterr.ErrForwardingFailed) {
			return zero, err
		}

		lastErr = err
		c.disconnect()
		c.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).Msg("Component request failed")
		if attempt < attempts && !c.wait(attempt) {
			return zero, agenterr.Wrap(agenterr.KindCommunicationFailed, c.fwd.DeviceID(), c.cfg.Component, c.ctx.Err())
		}
	}

	return zero, c.exhausted(attempts, lastErr)
}

func (c *Channel[Req, Resp]) roundTrip(req Req, frame []byte) (Resp, error) {
	var resp Resp

	if err := c.connectOnce(); err != nil {
		return resp, err
	}
	if err := c.conn.SetDeadline(time.Now().Add(c.cfg.IOTimeout)); err != nil {
		return resp, err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return resp, fmt.Errorf("write request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}
	if err := c.cfg.Codec.Unmarshal(line, &resp); err != nil {
		return resp, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	if c.handshake.Match != nil && !c.handshake.Match(req, resp) {
		return resp, errMismatchedReply
	}
	return resp, nil
}

func (c *Channel[Req, Resp]) connectOnce() error {
	if c.conn != nil {
		return nil
	}
	if err := c.fwd.Forward(c.ctx, c.cfg.RemotePort); err != nil {
		return err
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(c.fwd.LocalPort()))
	conn, err := c.cfg.Dial(c.ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.logger.Debug().Str("address", addr).Msg("Connected to component")
	return nil
}

func (c *Channel[Req, Resp]) disconnect() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Error closing component connection")
	}
	c.conn = nil
	c.reader = nil
}

// wait sleeps the backoff for attempt. It returns false if the channel was
// stopped in the meantime.
func (c *Channel[Req, Resp]) wait(attempt int) bool {
	d := c.cfg.Retry.delay(attempt)
	if d <= 0 {
		return c.ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Channel[Req, Resp]) exhausted(attempts int, lastErr error) error {
	e := agenterr.Wrap(agenterr.KindCommunicationFailed, c.fwd.DeviceID(), c.cfg.Component, lastErr)
	e.Message = fmt.Sprintf("gave up after %d attempts", attempts)
	return e
}

func (c *Channel[Req, Resp]) stoppedErr() error {
	return agenterr.New(agenterr.KindCommunicationFailed, c.fwd.DeviceID(), c.cfg.Component, "channel is stopped")
}
