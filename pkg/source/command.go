// Package source provides production functions that compute values for the memoizer.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/illmade-knight/go-memocache/pkg/memo"
	"github.com/rs/zerolog"
)

// KeyPlaceholder is replaced by the key in every command argument.
const KeyPlaceholder = "{{key}}"

// ErrEmptyOutput is returned when the command succeeds but prints nothing.
var ErrEmptyOutput = errors.New("command produced no output")

// CommandConfig holds the configuration for a CommandSource.
type CommandConfig struct {
	// Command is the argv to run, e.g. ["osascript", "-e", "... {{key}} ..."].
	// It is executed directly, not through a shell.
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// CommandSource computes a value by running an external command for the key
// and taking its trimmed standard output.
type CommandSource struct {
	command []string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewCommandSource creates a CommandSource. A zero timeout means no limit.
func NewCommandSource(cfg *CommandConfig, logger zerolog.Logger) (*CommandSource, error) {
	if cfg == nil || len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("source command cannot be empty")
	}
	return &CommandSource{
		command: append([]string(nil), cfg.Command...),
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "CommandSource").Str("command", cfg.Command[0]).Logger(),
	}, nil
}

// Fetch runs the command for key. A non-zero exit, a timeout or empty output is an error.
func (s *CommandSource) Fetch(ctx context.Context, key string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := make([]string, len(s.command))
	for i, arg := range s.command {
		args[i] = strings.ReplaceAll(arg, KeyPlaceholder, key)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	s.logger.Debug().Str("key", key).Dur("took", time.Since(start)).Msg("Command finished.")
	if err != nil {
		s.logMultiline("Command stderr:", stderr.String())
		if ctx.Err() != nil {
			return "", fmt.Errorf("command for key '%s' interrupted: %w", key, ctx.Err())
		}
		return "", fmt.Errorf("command for key '%s' failed: %w", key, err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		s.logMultiline("Command stderr:", stderr.String())
		return "", fmt.Errorf("%w for key '%s'", ErrEmptyOutput, key)
	}
	return out, nil
}

// logMultiline logs a header followed by each non-empty line of message.
func (s *CommandSource) logMultiline(header, message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		s.logger.Error().Msgf("%s empty", header)
		return
	}
	s.logger.Error().Msg(header)
	for _, line := range strings.Split(trimmed, "\n") {
		s.logger.Error().Msgf("    %s", strings.TrimSpace(line))
	}
}

// Producer adapts the source for memo.Memoizer.Call: output is cacheable, failures are not.
func (s *CommandSource) Producer() memo.Producer[string, string] {
	return memo.Fallible(s.Fetch)
}

// Close is a no-op; each Fetch owns its own process.
func (s *CommandSource) Close() error {
	return nil
}
