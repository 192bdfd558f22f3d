// Package service drives the game server through its control script.
package service

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
	"github.com/adamancini/vsupdater/internal/install"
	"github.com/adamancini/vsupdater/internal/types"
)

// waitDelay bounds how long output pipes are drained after the script is
// killed, in case it left children holding them open.
const waitDelay = 5 * time.Second

// CommandRunner is an interface for running external commands.
// This allows for mocking in tests.
type CommandRunner interface {
	RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner uses os/exec to run commands.
type DefaultCommandRunner struct{}

// RunInDir executes a command in the specified directory and returns its
// combined output.
func (r *DefaultCommandRunner) RunInDir(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	return cmd.CombinedOutput()
}

// Controller runs <install>/server.sh with a single verb.
type Controller struct {
	installPath string
	timeout     time.Duration
	runner      CommandRunner
	logger      zerolog.Logger
}

// NewController creates a Controller with the default command runner.
func NewController(installPath string, timeout time.Duration, logger zerolog.Logger) *Controller {
	return NewControllerWithRunner(installPath, timeout, logger, &DefaultCommandRunner{})
}

// NewControllerWithRunner creates a Controller with a custom command runner (for testing).
func NewControllerWithRunner(installPath string, timeout time.Duration, logger zerolog.Logger, runner CommandRunner) *Controller {
	return &Controller{
		installPath: installPath,
		timeout:     timeout,
		runner:      runner,
		logger:      logger,
	}
}

// Stop stops the server.
func (c *Controller) Stop(ctx context.Context) error {
	return c.run(ctx, types.VerbStop)
}

// Start starts the server.
func (c *Controller) Start(ctx context.Context) error {
	return c.run(ctx, types.VerbStart)
}

// RunCommand sends text to the running server console, e.g. "/announce hi".
func (c *Controller) RunCommand(ctx context.Context, text string) error {
	return c.run(ctx, types.VerbCommand, text)
}

func (c *Controller) run(ctx context.Context, verb types.Verb, args ...string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	script := filepath.Join(c.installPath, install.ControlScript)
	start := time.Now()

	c.logger.Info().Str("verb", verb.String()).Str("script", script).Msg("Running control script")

	out, err := c.runner.RunInDir(ctx, c.installPath, script, append([]string{verb.String()}, args...)...)
	output := strings.TrimSpace(string(out))

	c.logger.Debug().
		Str("verb", verb.String()).
		Dur("duration", time.Since(start)).
		Str("output", output).
		Msg("Control script finished")

	if err == nil {
		return nil
	}

	failure := vserrors.Wrapf(err, vserrors.ErrServiceControlFailed, "%s %s failed", install.ControlScript, verb).
		WithDetail("verb", verb.String()).
		WithDetail("output", output)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure.WithDetail("exit_code", exitErr.ExitCode())
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		failure.WithDetail("timeout", c.timeout.String())
	}

	return failure
}
