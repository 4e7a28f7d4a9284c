// Package coordinator decides when to run tasks for changed files.
//
// The Orchestrator runs a single event loop that owns every piece of cycle
// state: the run gate, the debouncer, the live-reload notifier and the set of
// files dispatched by the current cycle. Blocking work (waiting for files to
// unlock, running tasks) happens on goroutines that report back to the loop
// tagged with the generation they were started in, so results from before a
// reset are recognized and dropped.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domainerrors "github.com/listenupapp/livewatch/internal/errors"
	"github.com/listenupapp/livewatch/internal/id"
	"github.com/listenupapp/livewatch/internal/logger"
	"github.com/listenupapp/livewatch/internal/watcher"
)

// DirectoryWatcher owns the OS watch handles.
type DirectoryWatcher interface {
	Reconcile(desired []string) watcher.Reconciliation
	Events() <-chan watcher.ChangeEvent
	Errors() <-chan error
}

// Expander turns directory patterns into directories.
type Expander interface {
	Expand(patterns []string) ([]string, error)
}

// EventFilter turns raw events into paths.
type EventFilter interface {
	Apply(ev watcher.ChangeEvent) (string, watcher.Decision)
	Ignored(p string) bool
}

// Runner executes a task sequence. It returns when the sequence is done and
// reports warnings and fatal errors through Hooks.
type Runner interface {
	Run(ctx context.Context, tasks []string) error
}

// LiveReloadOptions configures the live-reload side of the orchestrator.
type LiveReloadOptions struct {
	Enabled    bool
	Port       int
	Extensions []string
	Key        []byte
	Cert       []byte
}

// Options configures an Orchestrator.
type Options struct {
	Dirs       []string
	Debounce   time.Duration
	LiveReload LiveReloadOptions
	Beep       bool
	ErrorStack bool
	Force      bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Watcher  DirectoryWatcher
	Expander Expander
	Filter   EventFilter
	Unlock   *UnlockWaiter
	Resolver TaskResolver
	Runner   Runner
	Reloader Reloader
	Hooks    *Hooks
	Logger   *logger.Logger
}

type unlockResult struct {
	gen   uint64
	files []string
	err   error
}

type runResult struct {
	gen   uint64
	tasks []string
	err   error
}

type hookEvent struct {
	fatal bool
	err   error
}

// Orchestrator perpetuates the watch: it activates the directory watches,
// turns bursts of changes into dispatch cycles and re-activates after every
// cycle and every reset.
type Orchestrator struct {
	opts Options
	deps Deps
	log  *logger.Logger

	gate       *RunGate
	debounce   *Debouncer
	notifier   *Notifier
	dispatched *FileSet

	generation uint64
	cycleID    string
	cancelWork context.CancelFunc

	unlockDone chan unlockResult
	runDone    chan runResult
	hookCh     chan hookEvent
	done       chan struct{}

	// activated is signalled after every activation. Tests use it to
	// synchronize with the loop.
	activated func()
}

// New creates an Orchestrator.
func New(opts Options, deps Deps) *Orchestrator {
	if deps.Hooks == nil {
		deps.Hooks = NewHooks()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}

	return &Orchestrator{
		opts:       opts,
		deps:       deps,
		log:        deps.Logger,
		gate:       NewRunGate(),
		debounce:   NewDebouncer(opts.Debounce),
		notifier:   NewNotifier(opts.LiveReload.Enabled, opts.LiveReload.Extensions, deps.Reloader, deps.Logger.Logger),
		dispatched: NewFileSet(),
		unlockDone: make(chan unlockResult, 1),
		runDone:    make(chan runResult, 1),
		hookCh:     make(chan hookEvent, 8),
		done:       make(chan struct{}),
		activated:  func() {},
	}
}

// Run starts the live-reload server when enabled, activates the watch and
// processes events until ctx is cancelled. It returns an error only when the
// live-reload server cannot start.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	defer o.debounce.Stop()
	defer o.cancelInFlight()

	lr := o.opts.LiveReload
	if lr.Enabled && o.deps.Reloader != nil {
		o.log.Info(fmt.Sprintf("Starting live reload server on port: %d", lr.Port))
		if err := o.deps.Reloader.Start(ctx, lr.Port, lr.Key, lr.Cert); err != nil {
			if domainerrors.Is(err, domainerrors.ErrPortInUse) {
				o.log.Error(fmt.Sprintf("Port %d is already in use by another process.", lr.Port))
			} else {
				o.log.Error("Fatal error: " + err.Error())
			}
			return err
		}
		o.log.Debug(fmt.Sprintf("LiveReload server successfully started on port: %d", lr.Port))
	}

	o.deps.Hooks.OnWarning(o.forwardHook(false))
	o.deps.Hooks.OnFatal(o.forwardHook(true))

	o.activate(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-o.deps.Watcher.Events():
			o.handleEvent(ev)

		case err := <-o.deps.Watcher.Errors():
			o.log.Warn("watch error", "error", err)

		case <-o.debounce.C():
			o.beginCycle(ctx)

		case res := <-o.unlockDone:
			o.handleUnlocked(ctx, res)

		case res := <-o.runDone:
			o.handleRunDone(ctx, res)

		case h := <-o.hookCh:
			o.handleHook(ctx, h)
		}
	}
}

func (o *Orchestrator) forwardHook(fatal bool) HookFunc {
	return func(err error) {
		select {
		case o.hookCh <- hookEvent{fatal: fatal, err: err}:
		case <-o.done:
		}
	}
}

// activate reconciles the watched directories and ends the current cycle.
func (o *Orchestrator) activate(ctx context.Context) {
	dirs, err := o.deps.Expander.Expand(o.opts.Dirs)
	if err != nil {
		o.log.Warn("failed to expand dirs", "error", err)
	} else {
		o.deps.Watcher.Reconcile(dirs)
	}

	o.log.Info("Waiting...")
	o.endCycle(ctx)
	o.activated()
}

// endCycle returns the gate to idle and replays what was deferred. Replayed
// paths start the next cycle immediately.
func (o *Orchestrator) endCycle(ctx context.Context) {
	deferred := o.gate.Deferred()
	if len(deferred) > 0 {
		o.log.Debug("Files changed within watch task:\n" + strings.Join(deferred, "\n"))
	}

	replayed, dropped := o.gate.End(o.dispatched)
	o.dispatched = NewFileSet()

	for _, p := range dropped {
		o.log.Debug("Didn't dispatch: " + p)
	}
	for _, p := range replayed {
		o.log.Debug("dispatched deferred: " + p)
		o.notifier.Track(p)
	}

	if o.gate.Pending() > 0 {
		o.beginCycle(ctx)
	}
}

func (o *Orchestrator) handleEvent(ev watcher.ChangeEvent) {
	p, decision := o.deps.Filter.Apply(ev)
	if decision != watcher.File {
		return
	}
	o.ingest(p)
}

// ingest hands a changed file to the gate.
func (o *Orchestrator) ingest(p string) {
	if o.deps.Filter.Ignored(p) {
		return
	}
	if o.gate.Running() {
		o.log.Debug("Still running, so defer: " + p)
		o.gate.Ingest(p)
		return
	}
	o.notifier.Track(p)
	if o.gate.Ingest(p) {
		o.debounce.Arm()
	}
}

// beginCycle snapshots the pending files and waits for the ones with tasks
// to unlock.
func (o *Orchestrator) beginCycle(ctx context.Context) {
	if o.gate.Running() || o.gate.Pending() == 0 {
		return
	}

	o.cancelInFlight()

	files := o.gate.Begin()
	o.generation++
	gen := o.generation
	o.cycleID = id.MustGenerate(id.PrefixCycle)
	o.log.Debug("cycle started", "cycle", o.cycleID, "files", len(files))

	var withTasks []string
	for _, f := range files {
		if len(o.deps.Resolver.Resolve(f)) > 0 {
			withTasks = append(withTasks, f)
		}
	}

	workCtx, cancel := context.WithCancel(ctx)
	o.cancelWork = cancel

	go func() {
		_, err := o.deps.Unlock.Wait(workCtx, withTasks)
		select {
		case o.unlockDone <- unlockResult{gen: gen, files: files, err: err}:
		case <-o.done:
		}
	}()
}

func (o *Orchestrator) handleUnlocked(ctx context.Context, res unlockResult) {
	if res.gen != o.generation || res.err != nil {
		return
	}

	batch := Build(res.files, o.deps.Resolver)
	o.dispatched = batch.Dispatched

	reload := o.notifier.Flush(ctx)
	changed := NewFileSet(reload...)
	for _, f := range batch.Files {
		changed.Add(f)
	}

	o.log.Info("File(s) changed:")
	o.log.Info(strings.Join(changed.Paths(), "\n"))

	if len(batch.Tasks) == 0 {
		o.cancelInFlight()
		o.log.Info("Continuing watch")
		o.log.Info("Waiting...")
		o.endCycle(ctx)
		return
	}

	o.log.Debug("running tasks", "cycle", o.cycleID, "tasks", strings.Join(batch.Tasks, ", "))

	runCtx, cancel := context.WithCancel(ctx)
	prev := o.cancelWork
	o.cancelWork = func() {
		cancel()
		if prev != nil {
			prev()
		}
	}

	gen := res.gen
	tasks := batch.Tasks
	go func() {
		err := o.deps.Runner.Run(runCtx, tasks)
		select {
		case o.runDone <- runResult{gen: gen, tasks: tasks, err: err}:
		case <-o.done:
		}
	}()
}

func (o *Orchestrator) handleRunDone(ctx context.Context, res runResult) {
	// Hooks raised by the runner are queued before its result.
	o.drainHooks(ctx)

	if res.gen != o.generation {
		return
	}
	if res.err != nil && !errors.Is(res.err, context.Canceled) {
		o.log.Debug("task run finished with error", "cycle", o.cycleID, "error", res.err)
	}
	o.cancelInFlight()
	o.activate(ctx)
}

// handleHook reports a warning or fatal error. Unless forced, it abandons the
// current cycle and activates again with nothing queued.
func (o *Orchestrator) handleHook(ctx context.Context, h hookEvent) {
	if o.opts.Beep {
		o.log.Beep()
	}

	msg := o.message(h.err)
	if h.fatal {
		o.log.Error("Fatal error: " + msg)
	} else {
		o.log.Warn("Warning: " + msg)
	}

	if o.opts.Force {
		return
	}

	o.reset()
	o.activate(ctx)
}

func (o *Orchestrator) drainHooks(ctx context.Context) {
	for {
		select {
		case h := <-o.hookCh:
			o.handleHook(ctx, h)
		default:
			return
		}
	}
}

// message returns the text for a hook line: the error's stack when it has
// one and stacks are enabled, else its message.
func (o *Orchestrator) message(err error) string {
	if err == nil {
		return "unknown error"
	}
	var st interface{ Stack() string }
	if o.opts.ErrorStack && errors.As(err, &st) {
		if s := st.Stack(); s != "" {
			return s
		}
	}
	return err.Error()
}

// reset invalidates in-flight work and forgets all cycle state.
func (o *Orchestrator) reset() {
	o.cancelInFlight()
	o.generation++
	o.debounce.Stop()
	o.gate.Reset()
	o.notifier.Reset()
	o.dispatched = NewFileSet()
}

func (o *Orchestrator) cancelInFlight() {
	if o.cancelWork != nil {
		o.cancelWork()
		o.cancelWork = nil
	}
}
