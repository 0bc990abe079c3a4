package correction

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/clock"
)

const (
	DefaultDebounce = 1500 * time.Millisecond
	DefaultTimeout  = 30 * time.Second
)

// Result is delivered for every correction that was still current when it
// completed.
type Result struct {
	Text      string
	Corrected string
	Err       error
	Latency   time.Duration
}

type DebounceOptions struct {
	Delay   time.Duration
	Timeout time.Duration
	Clock   clock.Clock
	// OnIssue is called when a call is handed to the corrector.
	OnIssue func(text string)
}

// Debouncer issues at most one current correction. Every Schedule supersedes
// the pending timer and any call still in flight; superseded results are
// dropped.
type Debouncer struct {
	corrector Corrector
	opts      DebounceOptions
	onResult  func(Result)
	log       *slog.Logger

	mu       sync.Mutex
	gen      int
	timer    clock.Timer
	inFlight context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
}

func NewDebouncer(c Corrector, opts DebounceOptions, onResult func(Result), logger *slog.Logger) *Debouncer {
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		corrector: c,
		opts:      opts,
		onResult:  onResult,
		log:       logger.With(slog.String("component", "correction.debouncer")),
	}
}

// Schedule arms the timer for text. Blank text only cancels.
func (d *Debouncer) Schedule(text string) {
	if strings.TrimSpace(text) == "" {
		d.Cancel()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.supersedeLocked()
	gen := d.gen
	d.timer = d.opts.Clock.AfterFunc(d.opts.Delay, func() { d.fire(gen, text) })
}

// Cancel drops the pending timer and any call in flight.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	d.supersedeLocked()
	d.mu.Unlock()
}

// Pending reports whether a timer is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// InFlight reports whether a current call is running.
func (d *Debouncer) InFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight != nil
}

// Close cancels everything and waits for running calls to return.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.supersedeLocked()
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Debouncer) supersedeLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.inFlight != nil {
		d.inFlight()
		d.inFlight = nil
	}
}

func (d *Debouncer) fire(gen int, text string) {
	d.mu.Lock()
	if gen != d.gen || d.closed {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	d.inFlight = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	if d.opts.OnIssue != nil {
		d.opts.OnIssue(text)
	}
	go d.run(ctx, cancel, gen, text)
}

func (d *Debouncer) run(ctx context.Context, cancel context.CancelFunc, gen int, text string) {
	defer d.wg.Done()
	defer cancel()

	start := time.Now()
	corrected, err := d.corrector.Correct(ctx, text)
	latency := time.Since(start)

	d.mu.Lock()
	current := gen == d.gen && !d.closed
	if current {
		d.inFlight = nil
	}
	d.mu.Unlock()

	if !current {
		d.log.Debug("dropping superseded correction", slog.Duration("latency", latency))
		return
	}
	if err != nil {
		d.log.Warn("correction failed", slog.String("error", err.Error()))
	}
	if d.onResult != nil {
		d.onResult(Result{Text: text, Corrected: corrected, Err: err, Latency: latency})
	}
}
