package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CoalescesArms(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	for range 5 {
		d.Arm()
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-d.C():
	case <-time.After(time.Second):
		t.Fatal("debouncer never fired")
	}

	select {
	case <-d.C():
		t.Fatal("debouncer fired twice")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestDebouncer_StopCancels(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Arm()
	d.Stop()

	select {
	case <-d.C():
		t.Fatal("stopped debouncer fired")
	case <-time.After(40 * time.Millisecond):
	}
}

func newTestWaiter(limit int, check func(string) error) *UnlockWaiter {
	w := NewUnlockWaiter(".", time.Millisecond, limit, slog.New(slog.DiscardHandler))
	w.check = check
	return w
}

func TestUnlockWaiter_ReadableFileTakesOneAttempt(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "empty.js"), nil, 0o644))
	w := NewUnlockWaiter(root, time.Millisecond, 50, slog.New(slog.DiscardHandler))

	attempts, err := w.Wait(context.Background(), []string{"a.js", "empty.js"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a.js": 1, "empty.js": 1}, attempts)
}

func TestUnlockWaiter_RetriesUntilUnlocked(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	w := newTestWaiter(50, func(string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 4 {
			return errors.New("locked")
		}
		return nil
	})

	attempts, err := w.Wait(context.Background(), []string{"a.js"})
	require.NoError(t, err)
	assert.Equal(t, 4, attempts["a.js"])
}

func TestUnlockWaiter_GivesUpAfterLimit(t *testing.T) {
	w := newTestWaiter(50, func(string) error { return errors.New("locked") })

	attempts, err := w.Wait(context.Background(), []string{"a.js", "b.js"})
	require.NoError(t, err)
	assert.Equal(t, 51, attempts["a.js"])
	assert.Equal(t, 51, attempts["b.js"])
}

func TestUnlockWaiter_ZeroLimit(t *testing.T) {
	w := newTestWaiter(0, func(string) error { return errors.New("locked") })

	attempts, err := w.Wait(context.Background(), []string{"a.js"})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts["a.js"])
}

func TestUnlockWaiter_FilesAreIndependent(t *testing.T) {
	w := newTestWaiter(50, func(p string) error {
		if p == "locked.js" {
			return errors.New("locked")
		}
		return nil
	})

	attempts, err := w.Wait(context.Background(), []string{"ok.js", "locked.js"})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts["ok.js"])
	assert.Equal(t, 51, attempts["locked.js"])
}

func TestUnlockWaiter_Cancelled(t *testing.T) {
	w := NewUnlockWaiter(".", time.Hour, 50, slog.New(slog.DiscardHandler))
	w.check = func(string) error { return errors.New("locked") }

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := w.Wait(ctx, []string{"a.js"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnlockWaiter_NoPaths(t *testing.T) {
	w := newTestWaiter(50, nil)

	attempts, err := w.Wait(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}
