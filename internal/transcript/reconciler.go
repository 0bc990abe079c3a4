package transcript

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/loqalabs/loqa-scribe/internal/clock"
	"github.com/loqalabs/loqa-scribe/internal/recognition"
)

const (
	DefaultRestartDelay    = 50 * time.Millisecond
	DefaultDuplicateWindow = 50 * time.Millisecond
	DefaultDedupCapacity   = 50
)

// State is the reconciled view of the recognition stream.
type State struct {
	FinalText   string
	InterimText string
	Listening   bool
	Err         *EngineError
	// Seq increases with every published change. Subscribers are called
	// outside the lock and may observe states out of order; the higher Seq
	// is the newer state.
	Seq uint64
}

// Options tunes the reconciler. RestartDelay, DuplicateWindow and
// DedupCapacity were picked empirically against browser engines.
type Options struct {
	Strategy Strategy
	// RestartDelay is how long to wait after an unrequested End before starting
	// the engine again.
	RestartDelay time.Duration
	// DuplicateWindow drops a Result event arriving sooner than this after the
	// previous one. Zero disables the check. Incremental strategy only.
	DuplicateWindow time.Duration
	// DedupCapacity bounds the set of recently accepted (text, index) pairs.
	DedupCapacity int
	Clock         clock.Clock
}

// DefaultOptions returns the incremental strategy with the stock tuning.
func DefaultOptions() Options {
	return Options{
		Strategy:        StrategyIncremental,
		RestartDelay:    DefaultRestartDelay,
		DuplicateWindow: DefaultDuplicateWindow,
		DedupCapacity:   DefaultDedupCapacity,
		Clock:           clock.Real(),
	}
}

// Reconciler turns engine events into a stable transcript and keeps continuous
// listening alive across engine self-termination.
type Reconciler struct {
	engine  recognition.Engine
	opts    Options
	log     *slog.Logger
	metrics *metrics
	fold    cases.Caser

	mu            sync.Mutex
	state         State
	seq           uint64
	shouldRestart bool
	starting      bool
	restartTimer  clock.Timer
	restartSeq    int
	lastResultAt  time.Time
	dedup         *dedupWindow
	base          string
	sessionFinals int
	rebuildSkip   int
	closed        bool
	subscribers   map[int]func(State)
	nextSub       int
}

// New builds a reconciler and registers it as the engine's event handler. A nil
// engine yields an unsupported reconciler.
func New(engine recognition.Engine, opts Options, logger *slog.Logger) *Reconciler {
	if opts.Strategy == "" {
		opts.Strategy = StrategyIncremental
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.DuplicateWindow < 0 {
		opts.DuplicateWindow = 0
	}
	if opts.DedupCapacity <= 0 {
		opts.DedupCapacity = DefaultDedupCapacity
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		engine:      engine,
		opts:        opts,
		log:         logger.With(slog.String("component", "transcript.reconciler")),
		metrics:     newMetrics(),
		fold:        cases.Fold(),
		dedup:       newDedupWindow(opts.DedupCapacity),
		subscribers: make(map[int]func(State)),
	}
	if engine != nil {
		engine.OnEvent(r.HandleEvent)
	}
	return r
}

// Supported reports whether a recognition engine is available.
func (r *Reconciler) Supported() bool {
	return r.engine != nil
}

// Strategy reports the reconciliation strategy in use.
func (r *Reconciler) Strategy() Strategy {
	return r.opts.Strategy
}

// State returns a copy of the current transcript state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn to receive the state after every change. The returned
// function removes the subscription.
func (r *Reconciler) Subscribe(fn func(State)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}
}

// Start begins listening. It is a no-op while listening or while a start is
// already in flight.
func (r *Reconciler) Start() error {
	if r.engine == nil {
		return ErrUnsupported
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.state.Listening || r.starting {
		r.mu.Unlock()
		return nil
	}
	r.shouldRestart = true
	r.starting = true
	hadErr := r.state.Err != nil
	r.state.Err = nil
	var snapshot State
	if hadErr {
		snapshot = r.publishLocked()
	}
	r.mu.Unlock()

	if hadErr {
		r.notify(snapshot)
	}
	if err := r.engine.Start(); err != nil {
		r.fail(causedError(kindStartFailed, err))
		return err
	}
	return nil
}

// Stop ends listening and disables automatic restart.
func (r *Reconciler) Stop() error {
	if r.engine == nil {
		return ErrUnsupported
	}
	r.mu.Lock()
	r.shouldRestart = false
	if r.cancelRestartLocked() {
		// The engine already ended; only the pending restart kept us listening.
		r.state.Listening = false
		r.state.InterimText = ""
		snapshot := r.publishLocked()
		r.mu.Unlock()
		r.notify(snapshot)
		return nil
	}
	active := r.state.Listening || r.starting
	r.starting = false
	r.mu.Unlock()

	if !active {
		return nil
	}
	return r.engine.Stop()
}

// Clear empties the transcript and the de-duplication bookkeeping.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	r.state.FinalText = ""
	r.state.InterimText = ""
	r.dedup.purge()
	r.lastResultAt = time.Time{}
	r.base = ""
	r.rebuildSkip = r.sessionFinals
	snapshot := r.publishLocked()
	r.mu.Unlock()

	r.notify(snapshot)
}

// Close cancels any pending restart and aborts the engine. Events delivered
// afterwards are ignored.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.shouldRestart = false
	r.cancelRestartLocked()
	r.state.Listening = false
	r.state.InterimText = ""
	r.subscribers = make(map[int]func(State))
	r.mu.Unlock()

	if r.engine != nil {
		if err := r.engine.Abort(); err != nil {
			r.log.Warn("engine abort failed", slogError(err))
		}
	}
}

// HandleEvent applies one engine event.
func (r *Reconciler) HandleEvent(evt recognition.Event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	var changed bool
	switch e := evt.(type) {
	case recognition.StartEvent:
		changed = r.onStart()
	case recognition.EndEvent:
		changed = r.onEnd()
	case recognition.ErrorEvent:
		changed = r.onError(e)
	case recognition.ResultEvent:
		changed = r.onResult(e)
	}
	var snapshot State
	if changed {
		snapshot = r.publishLocked()
	}
	r.mu.Unlock()

	if changed {
		r.notify(snapshot)
	}
}

func (r *Reconciler) onStart() bool {
	r.starting = false
	r.state.Listening = true
	r.state.Err = nil
	r.base = r.state.FinalText
	r.sessionFinals = 0
	r.rebuildSkip = 0
	return true
}

func (r *Reconciler) onEnd() bool {
	r.starting = false
	r.state.InterimText = ""
	if r.shouldRestart && r.state.Err == nil {
		r.scheduleRestartLocked()
		return true
	}
	r.state.Listening = false
	return true
}

func (r *Reconciler) onError(e recognition.ErrorEvent) bool {
	r.starting = false
	r.state.Err = ErrorFor(e.Kind)
	r.state.Listening = false
	r.shouldRestart = false
	r.cancelRestartLocked()
	r.metrics.engineError(string(e.Kind))
	r.log.Warn("recognition error", slog.String("kind", string(e.Kind)))
	return true
}

func (r *Reconciler) onResult(e recognition.ResultEvent) bool {
	var out reconcileResult
	switch r.opts.Strategy {
	case StrategyRebuild:
		out = reconcileRebuild(r.fold, r.base, r.rebuildSkip, e)
		r.sessionFinals = out.sessionFinals
	default:
		at := e.At
		if at.IsZero() {
			at = r.opts.Clock.Now()
		}
		if r.opts.DuplicateWindow > 0 && !r.lastResultAt.IsZero() && at.Sub(r.lastResultAt) < r.opts.DuplicateWindow {
			r.metrics.suppressedResult(suppressProximity)
			r.log.Debug("dropped result event inside duplicate window", slog.Duration("since_last", at.Sub(r.lastResultAt)))
			return false
		}
		r.lastResultAt = at
		out = reconcileIncremental(r.fold, r.dedup, r.state.FinalText, e)
	}

	for _, reason := range out.suppressed {
		r.metrics.suppressedResult(reason)
		r.log.Debug("dropped duplicate final result", slog.String("reason", reason))
	}
	r.metrics.acceptedFinals(out.accepted)

	if out.final == r.state.FinalText && out.interim == r.state.InterimText {
		return false
	}
	r.state.FinalText = out.final
	r.state.InterimText = out.interim
	return true
}

func (r *Reconciler) scheduleRestartLocked() {
	if r.restartTimer != nil {
		return
	}
	r.restartSeq++
	seq := r.restartSeq
	r.restartTimer = r.opts.Clock.AfterFunc(r.opts.RestartDelay, func() { r.restart(seq) })
}

// cancelRestartLocked reports whether a restart was pending.
func (r *Reconciler) cancelRestartLocked() bool {
	if r.restartTimer == nil {
		return false
	}
	r.restartTimer.Stop()
	r.restartTimer = nil
	return true
}

func (r *Reconciler) restart(seq int) {
	r.mu.Lock()
	if r.restartTimer == nil || r.restartSeq != seq || r.closed || !r.shouldRestart {
		r.mu.Unlock()
		return
	}
	r.restartTimer = nil
	r.starting = true
	r.mu.Unlock()

	r.metrics.restart()
	r.log.Info("restarting recognition engine after silent end")
	if err := r.engine.Start(); err != nil {
		r.fail(causedError(kindRestartFailed, err))
	}
}

func (r *Reconciler) fail(engineErr *EngineError) {
	r.mu.Lock()
	r.starting = false
	r.shouldRestart = false
	r.cancelRestartLocked()
	r.state.Listening = false
	r.state.Err = engineErr
	snapshot := r.publishLocked()
	r.mu.Unlock()

	r.metrics.engineError(string(engineErr.Kind))
	r.log.Warn("recognition engine failed to start", slog.String("kind", string(engineErr.Kind)), slogError(engineErr.Unwrap()))
	r.notify(snapshot)
}

// publishLocked stamps the state with the next sequence number and returns the
// copy handed to subscribers.
func (r *Reconciler) publishLocked() State {
	r.seq++
	r.state.Seq = r.seq
	return r.state
}

func (r *Reconciler) notify(state State) {
	r.mu.Lock()
	subs := make([]func(State), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
