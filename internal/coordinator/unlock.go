package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// UnlockWaiter polls changed files until they can be read, so tasks do not
// start on a file an editor or another tool still holds.
type UnlockWaiter struct {
	root     string
	interval time.Duration
	limit    int
	logger   *slog.Logger
	check    func(path string) error
}

// NewUnlockWaiter returns a waiter for paths relative to root. A file is
// retried every interval and given up on, and let through anyway, after
// limit failed attempts.
func NewUnlockWaiter(root string, interval time.Duration, limit int, logger *slog.Logger) *UnlockWaiter {
	w := &UnlockWaiter{
		root:     root,
		interval: interval,
		limit:    limit,
		logger:   logger,
	}
	w.check = w.readable
	return w
}

// Wait checks every path concurrently and returns the number of attempts
// each one took. It fails only when ctx is cancelled.
func (w *UnlockWaiter) Wait(ctx context.Context, paths []string) (map[string]int, error) {
	attempts := make([]int, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			n, err := w.waitOne(gctx, p)
			attempts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := make(map[string]int, len(paths))
	for i, p := range paths {
		res[p] = attempts[i]
	}
	return res, nil
}

func (w *UnlockWaiter) waitOne(ctx context.Context, p string) (int, error) {
	timer := time.NewTimer(w.interval)
	timer.Stop()
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		err := w.check(p)
		if err == nil || attempt > w.limit {
			return attempt, nil
		}

		w.logger.Debug("Waiting for file to unlock", "attempt", attempt, "path", p)

		timer.Reset(w.interval)
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

// readable opens p and reads from it.
func (w *UnlockWaiter) readable(p string) error {
	f, err := os.Open(filepath.Join(w.root, filepath.FromSlash(p)))
	if err != nil {
		return err
	}
	defer f.Close()

	var buf [1]byte
	if _, err := f.Read(buf[:]); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
