// Package runner executes named tasks as shell commands, one after another.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	domainerrors "github.com/listenupapp/livewatch/internal/errors"
)

// stderrTail is how much of a failed command's stderr is kept for reporting.
const stderrTail = 4 << 10

// waitDelay bounds how long a cancelled command's children may hold its
// output pipes open.
const waitDelay = time.Second

// Reporter receives task warnings and fatal errors.
type Reporter interface {
	Warn(err error)
	Fatal(err error)
}

// Command is the shell command behind a task.
type Command struct {
	Run string
	Dir string
	Env map[string]string
}

// Config configures a Runner.
type Config struct {
	// Root is the working directory; Command.Dir is relative to it.
	Root     string
	Commands map[string]Command
	// Force continues with the remaining tasks after a failure.
	Force  bool
	Stdout io.Writer
	Stderr io.Writer
}

// Runner runs task sequences.
type Runner struct {
	cfg      Config
	reporter Reporter
	logger   *slog.Logger
	shell    []string
}

// New creates a Runner. Failures are reported to reporter.
func New(cfg Config, reporter Reporter, logger *slog.Logger) *Runner {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	shell := []string{"sh", "-c"}
	if runtime.GOOS == "windows" {
		shell = []string{"cmd", "/C"}
	}
	return &Runner{cfg: cfg, reporter: reporter, logger: logger, shell: shell}
}

// Run runs tasks in order. A task that cannot be found or exits non-zero is
// reported as a warning, a task that cannot be started as a fatal error.
// Unless Force is set the first failure ends the sequence and is returned.
// Cancelling ctx kills the running command and returns ctx.Err() without
// reporting.
func (r *Runner) Run(ctx context.Context, tasks []string) error {
	var errs []error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.runTask(ctx, task)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if domainerrors.SeverityOf(err) == domainerrors.SeverityWarning {
			r.reporter.Warn(err)
		} else {
			r.reporter.Fatal(err)
		}

		if !r.cfg.Force {
			return err
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runner) runTask(ctx context.Context, task string) error {
	command, ok := r.cfg.Commands[task]
	if !ok {
		return domainerrors.TaskNotFoundf("Task %q not found.", task)
	}

	r.logger.Info(fmt.Sprintf("Running %q task", task))
	start := time.Now()

	args := append(slices.Clone(r.shell[1:]), command.Run)
	cmd := exec.CommandContext(ctx, r.shell[0], args...) //#nosec G204 -- commands come from the watch file
	cmd.Dir = r.dir(command)
	cmd.Env = environ(command.Env)
	cmd.WaitDelay = waitDelay

	// os/exec copies each stream on its own goroutine; one lock orders
	// writes across both.
	var mu sync.Mutex
	tail := &tailBuffer{max: stderrTail}
	cmd.Stdout = &lockedWriter{mu: &mu, w: r.cfg.Stdout}
	cmd.Stderr = &lockedWriter{mu: &mu, w: io.MultiWriter(r.cfg.Stderr, tail)}

	if err := cmd.Start(); err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeTaskStart, "task %q could not start", task)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return domainerrors.Wrapf(err, domainerrors.CodeTaskStart, "task %q did not run", task)
		}
		return &TaskError{
			Task:     task,
			ExitCode: exitErr.ExitCode(),
			Stderr:   tail.String(),
			err:      domainerrors.Wrapf(err, domainerrors.CodeTaskFailed, "Task %q failed", task),
		}
	}

	r.logger.Debug("task done", "task", task, "took", time.Since(start))
	return nil
}

func (r *Runner) dir(c Command) string {
	if c.Dir == "" {
		return r.cfg.Root
	}
	if filepath.IsAbs(c.Dir) {
		return c.Dir
	}
	return filepath.Join(r.cfg.Root, c.Dir)
}

// environ returns the process environment with extra appended in key order.
func environ(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// TaskError is a task that ran and exited non-zero.
type TaskError struct {
	Task     string
	ExitCode int
	Stderr   string
	err      *domainerrors.Error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return e.err.Error()
}

// Unwrap returns the coded error.
func (e *TaskError) Unwrap() error {
	return e.err
}

// Stack returns the failure with the tail of the command's stderr.
func (e *TaskError) Stack() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %q failed with exit code %d", e.Task, e.ExitCode)
	if s := strings.TrimRight(e.Stderr, "\n"); s != "" {
		b.WriteString("\n")
		b.WriteString(s)
	}
	return b.String()
}

// lockedWriter serializes writes to w with a lock shared with its sibling
// stream.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
