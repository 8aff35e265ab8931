// Package console is the interactive operator prompt of the agent.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
)

const historyFileName = ".grid_agent_history"

// Executor runs one named command.
type Executor interface {
	ExecuteCommand(ctx context.Context, name string, args []string) (string, error)
}

// Console reads commands line by line and prints their output.
type Console struct {
	executor Executor
	commands []string
	exitErr  error
	logger   zerolog.Logger

	mu sync.Mutex
	rl *readline.Instance
}

// New creates a console. Commands feed tab completion; a command returning
// exitErr ends the loop.
func New(executor Executor, commands []string, exitErr error, logger zerolog.Logger) *Console {
	return &Console{
		executor: executor,
		commands: commands,
		exitErr:  exitErr,
		logger:   logger,
	}
}

func (c *Console) completer() *readline.PrefixCompleter {
	names := make([]readline.PrefixCompleterInterface, len(c.commands))
	for i, name := range c.commands {
		names[i] = readline.PcItem(name)
	}

	items := make([]readline.PrefixCompleterInterface, 0, len(c.commands))
	for _, name := range c.commands {
		if name == "help" {
			items = append(items, readline.PcItem(name, names...))
			continue
		}
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands until exit, EOF or ctx is cancelled. EOF runs the exit
// command so the agent is stopped before returning.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "agent> ",
		HistoryFile:     filepath.Join(os.TempDir(), historyFileName),
		AutoComplete:    c.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	c.mu.Lock()
	c.rl = rl
	c.mu.Unlock()
	defer rl.Close()

	c.logger.Info().Msg("Console started, type help for the list of commands")
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		} else if errors.Is(err, io.EOF) {
			if ctx.Err() == nil {
				c.Execute(ctx, rl.Stdout(), "exit")
			}
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		if c.Execute(ctx, rl.Stdout(), line) {
			return nil
		}
	}
}

// Close unblocks a pending Run.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rl == nil {
		return nil
	}
	return c.rl.Close()
}

// Execute runs one input line and writes its output, or a single error line,
// to out. It reports whether the console should stop.
func (c *Console) Execute(ctx context.Context, out io.Writer, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	result, err := c.executor.ExecuteCommand(ctx, fields[0], fields[1:])
	if result != "" {
		fmt.Fprintln(out, result)
	}
	if err != nil {
		if c.exitErr != nil && errors.Is(err, c.exitErr) {
			return true
		}
		fmt.Fprintf(out, "error: %v\n", err)
	}
	return false
}
