// Package communicators exposes typed operations of the on-device companions
// on top of component channels.
package communicators

import (
	"encoding/json"
	"fmt"

	"github.com/benmeehan/grid-agent/internal/agenterr"
	"github.com/benmeehan/grid-agent/internal/channel"
	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/forward"
	"github.com/benmeehan/grid-agent/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ComponentChannel is the channel type shared by every companion.
type ComponentChannel = channel.Channel[models.ComponentRequest, models.ComponentResponse]

// Validation is the handshake every companion must answer with the same sentinel.
func Validation() channel.Handshake[models.ComponentRequest, models.ComponentResponse] {
	return channel.Handshake[models.ComponentRequest, models.ComponentResponse]{
		Request: func() models.ComponentRequest {
			return models.ComponentRequest{ID: uuid.NewString(), Type: constants.RequestValidation}
		},
		Accept: func(resp models.ComponentResponse) bool {
			return resp.Type == constants.RequestValidation && resp.Error == ""
		},
		Match: func(req models.ComponentRequest, resp models.ComponentResponse) bool {
			return resp.ID == req.ID
		},
	}
}

// NewComponentChannel builds the validated channel for one companion.
func NewComponentChannel(fwd *forward.Service, cfg channel.Config, logger zerolog.Logger) *ComponentChannel {
	return channel.New(fwd, cfg, Validation(), logger)
}

// communicator holds the plumbing shared by the facades.
type communicator struct {
	ch       *ComponentChannel
	deviceID string
}

// call sends a request of the given kind and decodes the result into out,
// which may be nil.
func (c *communicator) call(kind string, args any, out any) error {
	req := models.ComponentRequest{ID: uuid.NewString(), Type: kind}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encode %s arguments: %w", kind, err)
		}
		req.Args = raw
	}

	resp, err := c.ch.Request(req)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return agenterr.New(agenterr.KindActionFailed, c.deviceID, c.ch.Component(), resp.Error)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return agenterr.Wrap(agenterr.KindCommunicationFailed, c.deviceID, c.ch.Component(),
			fmt.Errorf("decode %s result: %w", kind, err))
	}
	return nil
}

// ping expects the companion to answer PONG.
func (c *communicator) ping() error {
	resp, err := c.ch.Request(models.ComponentRequest{ID: uuid.NewString(), Type: constants.RequestPing})
	if err != nil {
		return err
	}
	if resp.Type != constants.ResponsePong {
		return agenterr.New(agenterr.KindActionFailed, c.deviceID, c.ch.Component(),
			fmt.Sprintf("unexpected ping reply %q", resp.Type))
	}
	return nil
}

// Validate re-runs the handshake.
func (c *communicator) Validate() error {
	return c.ch.Validate()
}

// Invalidate makes the next request reconnect and re-run the handshake.
func (c *communicator) Invalidate() {
	c.ch.Invalidate()
}

// Stop tears down the channel and its forward.
func (c *communicator) Stop() {
	c.ch.Stop()
}
