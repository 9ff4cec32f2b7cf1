package link

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// outputLimit caps how much command output is kept for logs and errors.
const outputLimit = 4096

// DefaultTimeout bounds each command run.
const DefaultTimeout = 30 * time.Second

// Logger defines the logging interface for links.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// None is a link that is always up.
type None struct{}

// Connect does nothing.
func (None) Connect(context.Context) error { return nil }

// Disconnect does nothing.
func (None) Disconnect(context.Context) error { return nil }

// CommandConfig holds the commands of a command-driven link.
type CommandConfig struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Up brings the link up. Required.
	Up []string

	// Down takes the link down. Optional.
	Down []string

	// Check verifies the link after Up, e.g. a ping to the collector.
	// Optional.
	Check []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// Timeout bounds each command run.
	Timeout time.Duration

	// ResetBeforeUp runs Down before Up on every Connect.
	ResetBeforeUp bool
}

// Command is a link driven by external commands.
type Command struct {
	config CommandConfig
	logger Logger
}

// NewCommand validates cfg and creates a command link.
func NewCommand(cfg CommandConfig) (*Command, error) {
	if len(cfg.Up) == 0 || cfg.Up[0] == "" {
		return nil, fmt.Errorf("%w: up command is required", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "link"
	}
	return &Command{config: cfg, logger: noopLogger{}}, nil
}

// SetLogger sets the logger for the link.
func (c *Command) SetLogger(logger Logger) {
	c.logger = logger
}

// Connect brings the link up, resetting it first when configured, and runs
// the check command if one is set.
func (c *Command) Connect(ctx context.Context) error {
	if c.config.ResetBeforeUp && len(c.config.Down) > 0 {
		if err := c.run(ctx, "down", c.config.Down); err != nil {
			c.logger.Debug("link reset failed", "name", c.config.Name, "error", err)
		}
	}

	if err := c.run(ctx, "up", c.config.Up); err != nil {
		return err
	}

	if len(c.config.Check) > 0 {
		if err := c.run(ctx, "check", c.config.Check); err != nil {
			return err
		}
	}

	c.logger.Info("link up", "name", c.config.Name)
	return nil
}

// Disconnect takes the link down. Without a down command it does nothing.
func (c *Command) Disconnect(ctx context.Context) error {
	if len(c.config.Down) == 0 {
		return nil
	}
	if err := c.run(ctx, "down", c.config.Down); err != nil {
		return err
	}
	c.logger.Info("link down", "name", c.config.Name)
	return nil
}

// run executes argv with the configured timeout and returns ErrCommandFailed
// with the trimmed output on failure.
func (c *Command) run(ctx context.Context, step string, argv []string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv comes from the operator's config file

	// Own process group so a timeout kills children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	if c.config.Env != nil {
		cmd.Env = append(os.Environ(), c.config.Env...)
	}

	var out limitedBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	output := strings.TrimSpace(out.String())

	c.logger.Debug("link command finished",
		"name", c.config.Name,
		"step", step,
		"argv", argv,
		"duration", time.Since(start),
		"output", output,
	)

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if output != "" {
			return fmt.Errorf("%w: %s %q: %w: %s", ErrCommandFailed, step, argv[0], err, output)
		}
		return fmt.Errorf("%w: %s %q: %w", ErrCommandFailed, step, argv[0], err)
	}
	return nil
}

// limitedBuffer keeps the first outputLimit bytes written to it.
type limitedBuffer struct {
	bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := outputLimit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
