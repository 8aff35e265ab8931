package services

import (
	"context"
	"errors"
	"time"

	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/benmeehan/grid-agent/internal/utils"
	"github.com/benmeehan/grid-agent/pkg/bridge"
	"github.com/rs/zerolog"
)

// ShellService runs device shell commands through the bridge with an
// execution deadline and an output size cap.
type ShellService struct {
	// Configuration Fields
	outputSizeLimit  int
	maxExecutionTime time.Duration

	// Dependencies
	bridge bridge.Bridge
	logger zerolog.Logger
}

// NewShellService initializes a new ShellService with given parameters.
func NewShellService(outputSizeLimit int, maxExecutionTime time.Duration, br bridge.Bridge, logger zerolog.Logger) *ShellService {
	if outputSizeLimit == 0 {
		outputSizeLimit = constants.DefaultOutputSizeLimit
	}
	if maxExecutionTime == 0 {
		maxExecutionTime = constants.DefaultMaxExecutionTime
	}

	return &ShellService{
		outputSizeLimit:  outputSizeLimit,
		maxExecutionTime: maxExecutionTime,
		bridge:           br,
		logger:           logger,
	}
}

// ExecuteCommand runs cmd on the device and returns its (possibly truncated)
// output. On failure the output gathered so far is returned with the error.
func (s *ShellService) ExecuteCommand(ctx context.Context, serial, cmd string) (string, error) {
	s.logger.Debug().Str("device_id", serial).Str("command", cmd).Msg("Executing shell command")

	ctx, cancel := context.WithTimeout(ctx, s.maxExecutionTime)
	defer cancel()

	output, err := s.bridge.Shell(ctx, serial, cmd)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Error().Str("device_id", serial).Msg("Shell command timed out")
			return "", ctx.Err()
		}
		s.logger.Error().Err(err).Str("device_id", serial).Msg("Shell command failed")
	}

	output, truncated := utils.Truncate(output, s.outputSizeLimit)
	if truncated {
		s.logger.Warn().Int("limit", s.outputSizeLimit).Msg("Shell output truncated due to size limit")
	}
	return output, err
}
