package transcript

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/clock"
	"github.com/loqalabs/loqa-scribe/internal/recognition"
)

// step is comfortably larger than the default duplicate window.
const step = 100 * time.Millisecond

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type harness struct {
	r      *Reconciler
	engine *recognition.Scripted
	clock  *clock.Fake
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	opts := DefaultOptions()
	opts.Clock = fake
	if mutate != nil {
		mutate(&opts)
	}
	engine := recognition.NewScripted()
	r := New(engine, opts, newLogger())
	t.Cleanup(r.Close)
	return &harness{r: r, engine: engine, clock: fake}
}

// feed advances past the duplicate window and delivers evt.
func (h *harness) feed(evt recognition.Event) {
	h.clock.Advance(step)
	h.engine.Emit(evt)
}

func final(text string) recognition.Result {
	return recognition.Result{IsFinal: true, Alternatives: []recognition.Alternative{{Transcript: text}}}
}

func interim(text string) recognition.Result {
	return recognition.Result{Alternatives: []recognition.Alternative{{Transcript: text}}}
}

func results(index int, rs ...recognition.Result) recognition.ResultEvent {
	return recognition.ResultEvent{ResultIndex: index, Results: rs}
}

func TestIncrementalConcatenatesFinalsInIndexOrder(t *testing.T) {
	h := newHarness(t, nil)

	h.feed(results(0, final("one")))
	h.feed(results(1, final("one"), interim("tw")))
	if got := h.r.State().InterimText; got != "tw" {
		t.Fatalf("expected interim tw, got %q", got)
	}
	h.feed(results(1, final("one"), final("two")))
	h.feed(results(2, final("one"), final("two"), final("three")))

	state := h.r.State()
	if state.FinalText != "one two three" {
		t.Fatalf("unexpected final text: %q", state.FinalText)
	}
	if state.InterimText != "" {
		t.Fatalf("expected empty interim, got %q", state.InterimText)
	}
}

func TestDuplicateRedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)

	h.feed(results(0, final("ہیلو")))
	h.feed(results(0, final("ہیلو")))

	if got := h.r.State().FinalText; got != "ہیلو" {
		t.Fatalf("expected single greeting, got %q", got)
	}
}

func TestDuplicateRedeliveryWithinProximityWindow(t *testing.T) {
	h := newHarness(t, nil)

	h.feed(results(0, final("ہیلو")))
	h.engine.Emit(results(0, final("ہیلو")))

	if got := h.r.State().FinalText; got != "ہیلو" {
		t.Fatalf("expected single greeting, got %q", got)
	}
}

func TestInterimReplacedByFinal(t *testing.T) {
	h := newHarness(t, nil)

	h.feed(results(0, interim("میں جا")))
	if got := h.r.State().InterimText; got != "میں جا" {
		t.Fatalf("unexpected interim: %q", got)
	}
	h.feed(results(0, final("میں جا رہا ہوں")))

	state := h.r.State()
	if state.InterimText != "" {
		t.Fatalf("expected empty interim, got %q", state.InterimText)
	}
	if state.FinalText != "میں جا رہا ہوں" {
		t.Fatalf("unexpected final: %q", state.FinalText)
	}
}

func TestProximityWindowDropsWholeEvent(t *testing.T) {
	h := newHarness(t, nil)

	h.feed(results(0, final("first")))
	h.clock.Advance(10 * time.Millisecond)
	h.engine.Emit(results(1, final("first"), final("second")))
	if got := h.r.State().FinalText; got != "first" {
		t.Fatalf("expected event inside window to be dropped, got %q", got)
	}

	h.clock.Advance(DefaultDuplicateWindow)
	h.engine.Emit(results(1, final("first"), final("second")))
	if got := h.r.State().FinalText; got != "first second" {
		t.Fatalf("expected event after window to be applied, got %q", got)
	}
}

func TestZeroDuplicateWindowDisablesProximityCheck(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DuplicateWindow = 0 })

	h.engine.Emit(results(0, final("alpha")))
	h.engine.Emit(results(1, final("alpha"), final("beta")))

	if got := h.r.State().FinalText; got != "alpha beta" {
		t.Fatalf("unexpected final: %q", got)
	}
}

func TestInterimNeverContainsFinalText(t *testing.T) {
	h := newHarness(t, nil)
	var violations []string
	h.r.Subscribe(func(s State) {
		if s.InterimText != "" && strings.Contains(strings.ToLower(s.FinalText), strings.ToLower(s.InterimText)) {
			violations = append(violations, s.InterimText)
		}
	})

	h.feed(results(0, final("Hello World")))
	h.feed(results(1, final("Hello World"), interim("hello")))
	if got := h.r.State().InterimText; got != "" {
		t.Fatalf("expected contained interim to be hidden, got %q", got)
	}
	h.feed(results(1, final("Hello World"), interim("again")))
	if got := h.r.State().InterimText; got != "again" {
		t.Fatalf("expected new interim, got %q", got)
	}
	if len(violations) > 0 {
		t.Fatalf("interim overlapped final text: %v", violations)
	}
}

func TestFinalContainedCaseInsensitiveIsSkipped(t *testing.T) {
	h := newHarness(t, nil)

	h.feed(results(0, final("Good Morning everyone")))
	h.feed(results(1, final("Good Morning everyone"), final("good morning")))

	if got := h.r.State().FinalText; got != "Good Morning everyone" {
		t.Fatalf("unexpected final: %q", got)
	}
}

func TestEmptyFinalsAreIgnored(t *testing.T) {
	h := newHarness(t, nil)

	h.feed(results(0, final("   "), interim("")))
	state := h.r.State()
	if state.FinalText != "" || state.InterimText != "" {
		t.Fatalf("expected empty state, got %+v", state)
	}
}

func TestNegativeResultIndexReadsFromStart(t *testing.T) {
	h := newHarness(t, nil)

	h.feed(results(-1, final("ایک"), interim("دو")))
	state := h.r.State()
	if state.FinalText != "ایک" || state.InterimText != "دو" {
		t.Fatalf("unexpected state %+v", state)
	}
	// The reconciler must stay usable after the malformed event.
	h.r.Clear()
	if got := h.r.State().FinalText; got != "" {
		t.Fatalf("expected cleared transcript, got %q", got)
	}
}

func TestClearResetsTranscriptAndDedup(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.feed(results(0, final("alpha"), interim("be")))
	h.r.Clear()

	state := h.r.State()
	if state.FinalText != "" || state.InterimText != "" {
		t.Fatalf("expected cleared state, got %+v", state)
	}
	if !state.Listening {
		t.Fatal("clear must not stop listening")
	}
	if h.r.dedup.len() != 0 {
		t.Fatalf("expected dedup window purged")
	}

	h.engine.Emit(results(0, final("alpha")))
	if got := h.r.State().FinalText; got != "alpha" {
		t.Fatalf("expected text accepted again after clear, got %q", got)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.r.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if h.engine.Starts() != 1 {
		t.Fatalf("expected one engine start, got %d", h.engine.Starts())
	}
	if !h.r.State().Listening {
		t.Fatal("expected listening")
	}
}

func TestAutoRestartAfterSilentEnd(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.feed(results(0, final("kept"), interim("pending")))

	h.engine.SelfTerminate()
	state := h.r.State()
	if !state.Listening {
		t.Fatal("expected listening to survive a restarting end")
	}
	if state.InterimText != "" {
		t.Fatalf("expected interim cleared on end, got %q", state.InterimText)
	}
	if h.engine.Starts() != 1 {
		t.Fatalf("restart must wait for the delay")
	}

	h.clock.Advance(DefaultRestartDelay)
	if h.engine.Starts() != 2 {
		t.Fatalf("expected exactly one automatic start, got %d", h.engine.Starts()-1)
	}
	h.clock.Advance(time.Second)
	if h.engine.Starts() != 2 {
		t.Fatalf("expected no further starts, got %d", h.engine.Starts())
	}
	if got := h.r.State().FinalText; got != "kept" {
		t.Fatalf("final text lost across restart: %q", got)
	}
}

func TestRestartKeepsTextWhenEngineTruncatesHistory(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Start()

	h.feed(results(0, final("first session")))
	h.engine.SelfTerminate()
	h.clock.Advance(DefaultRestartDelay)
	h.feed(results(0, final("second session")))

	if got := h.r.State().FinalText; got != "first session second session" {
		t.Fatalf("unexpected final: %q", got)
	}
}

func TestStopCancelsPendingRestart(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Start()

	h.engine.SelfTerminate()
	if err := h.r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if h.r.State().Listening {
		t.Fatal("expected listening false after stop")
	}

	h.clock.Advance(time.Second)
	if h.engine.Starts() != 1 {
		t.Fatalf("pending restart was not cancelled: starts=%d", h.engine.Starts())
	}
	if h.r.State().Listening {
		t.Fatal("listening revived after stop")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", h.clock.Pending())
	}
}

func TestStopWhileListeningStopsEngine(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Start()

	if err := h.r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if h.engine.Stops() != 1 {
		t.Fatalf("expected engine stop, got %d", h.engine.Stops())
	}
	h.clock.Advance(time.Second)
	if h.r.State().Listening || h.engine.Starts() != 1 {
		t.Fatal("stopped session must not restart")
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if h.engine.Stops() != 0 {
		t.Fatalf("expected no engine stop when idle")
	}
}

func TestErrorIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Start()

	h.engine.Emit(recognition.ErrorEvent{Kind: recognition.ErrorNoSpeech})
	h.engine.SelfTerminate()
	h.clock.Advance(time.Second)

	state := h.r.State()
	if state.Listening {
		t.Fatal("expected listening false after error")
	}
	if state.Err == nil || state.Err.Code != NoSpeechDetected {
		t.Fatalf("unexpected error: %+v", state.Err)
	}
	if h.engine.Starts() != 1 {
		t.Fatalf("error must disable restart, starts=%d", h.engine.Starts())
	}
}

func TestErrorCancelsPendingRestart(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Start()

	h.engine.SelfTerminate()
	h.engine.Emit(recognition.ErrorEvent{Kind: recognition.ErrorNetwork})
	h.clock.Advance(time.Second)

	if h.engine.Starts() != 1 {
		t.Fatalf("expected restart cancelled by error")
	}
	if h.r.State().Listening {
		t.Fatal("expected listening false")
	}
}

func TestStartClearsPreviousError(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Start()
	h.engine.Emit(recognition.ErrorEvent{Kind: recognition.ErrorNotAllowed})
	h.engine.SelfTerminate()

	if err := h.r.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	state := h.r.State()
	if state.Err != nil || !state.Listening {
		t.Fatalf("expected clean listening state, got %+v", state)
	}
}

func TestStartFailureReportsError(t *testing.T) {
	h := newHarness(t, nil)
	boom := errors.New("engine busy")
	h.engine.FailStart(boom)

	if err := h.r.Start(); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
	state := h.r.State()
	if state.Listening {
		t.Fatal("expected not listening")
	}
	if state.Err == nil || state.Err.Kind != kindStartFailed || !errors.Is(state.Err, boom) {
		t.Fatalf("unexpected error state: %+v", state.Err)
	}
	if state.Err.Message != "Speech recognition error: start-failed" {
		t.Fatalf("unexpected message: %q", state.Err.Message)
	}
}

func TestRestartFailureEndsSession(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Start()

	h.engine.FailStart(errors.New("still shutting down"))
	h.engine.SelfTerminate()
	h.clock.Advance(DefaultRestartDelay)

	state := h.r.State()
	if state.Listening {
		t.Fatal("expected listening false after failed restart")
	}
	if state.Err == nil || state.Err.Kind != kindRestartFailed {
		t.Fatalf("unexpected error: %+v", state.Err)
	}
	h.engine.FailStart(nil)
	h.clock.Advance(time.Second)
	if h.engine.Starts() != 1 {
		t.Fatalf("failed restart must not retry, starts=%d", h.engine.Starts())
	}
}

func TestErrorMessages(t *testing.T) {
	cases := map[recognition.ErrorKind]struct {
		code    ErrorCode
		message string
	}{
		recognition.ErrorNotAllowed:   {PermissionDenied, "Microphone access denied. Please allow microphone permissions and reload the page."},
		recognition.ErrorNoSpeech:     {NoSpeechDetected, "No speech was detected. Please try speaking louder."},
		recognition.ErrorAudioCapture: {NoMicrophone, "No microphone was found. Please ensure a microphone is connected."},
		recognition.ErrorNetwork:      {NetworkUnavailable, "Network error occurred. Please check your internet connection."},
		"service-not-allowed":         {UnknownEngineError, "Speech recognition error: service-not-allowed"},
	}
	for kind, want := range cases {
		got := ErrorFor(kind)
		if got.Code != want.code || got.Message != want.message || got.Error() != want.message {
			t.Fatalf("kind %s: unexpected %+v", kind, got)
		}
	}
}

func TestUnsupportedWithoutEngine(t *testing.T) {
	r := New(nil, DefaultOptions(), newLogger())
	if r.Supported() {
		t.Fatal("expected unsupported")
	}
	if err := r.Start(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if err := r.Stop(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	r.Clear()
	r.Close()
}

func TestCloseAbortsEngineAndIgnoresLateEvents(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.r.Start()
	h.engine.SelfTerminate()

	h.r.Close()
	h.clock.Advance(time.Second)
	if h.engine.Aborts() != 1 {
		t.Fatalf("expected engine abort, got %d", h.engine.Aborts())
	}
	if h.engine.Starts() != 1 {
		t.Fatalf("restart fired after close")
	}
	h.engine.Emit(results(0, final("late")))
	if got := h.r.State().FinalText; got != "" {
		t.Fatalf("late event applied after close: %q", got)
	}
	if err := h.r.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	h := newHarness(t, nil)
	var seen []State
	cancel := h.r.Subscribe(func(s State) { seen = append(seen, s) })

	_ = h.r.Start()
	h.feed(results(0, final("hi")))
	if len(seen) != 2 {
		t.Fatalf("expected start and result notifications, got %d", len(seen))
	}
	if seen[1].FinalText != "hi" || !seen[1].Listening {
		t.Fatalf("unexpected snapshot: %+v", seen[1])
	}

	cancel()
	h.feed(results(1, final("hi"), final("there")))
	if len(seen) != 2 {
		t.Fatalf("expected no notifications after unsubscribe")
	}
}

func TestNotificationsCarryIncreasingSeq(t *testing.T) {
	h := newHarness(t, nil)
	var seen []State
	h.r.Subscribe(func(s State) { seen = append(seen, s) })

	_ = h.r.Start()
	h.feed(results(0, final("hi")))
	h.feed(results(0, final("hi")))
	h.r.Clear()
	_ = h.r.Stop()

	// start, result, clear, end; the redelivered result changes nothing.
	if len(seen) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Seq <= seen[i-1].Seq {
			t.Fatalf("seq did not increase at %d: %d after %d", i, seen[i].Seq, seen[i-1].Seq)
		}
	}
	if got := h.r.State().Seq; got != seen[len(seen)-1].Seq {
		t.Fatalf("state seq %d does not match last notification %d", got, seen[len(seen)-1].Seq)
	}
}

func TestRebuildReplacesSessionText(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Strategy = StrategyRebuild })
	_ = h.r.Start()

	h.engine.Emit(results(0, final("a"), interim("b")))
	h.engine.Emit(results(1, final("a"), final("b")))
	state := h.r.State()
	if state.FinalText != "a b" || state.InterimText != "" {
		t.Fatalf("unexpected state: %+v", state)
	}

	h.engine.SelfTerminate()
	h.clock.Advance(DefaultRestartDelay)
	h.engine.Emit(results(0, final("c")))
	if got := h.r.State().FinalText; got != "a b c" {
		t.Fatalf("expected earlier sessions kept, got %q", got)
	}
}

func TestRebuildClearSkipsClearedFinals(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Strategy = StrategyRebuild })
	_ = h.r.Start()

	h.engine.Emit(results(0, final("a"), final("b")))
	h.r.Clear()
	h.engine.Emit(results(2, final("a"), final("b"), final("c")))

	if got := h.r.State().FinalText; got != "c" {
		t.Fatalf("expected only text after clear, got %q", got)
	}
}

func TestDedupWindowEvictsOldest(t *testing.T) {
	w := newDedupWindow(2)
	w.add("a", 0)
	w.add("b", 1)
	w.add("c", 2)

	if w.seen("a", 0) {
		t.Fatal("expected oldest entry evicted")
	}
	if !w.seen("b", 1) || !w.seen("c", 2) {
		t.Fatal("expected recent entries retained")
	}
	if w.seen("b", 2) {
		t.Fatal("index is part of the key")
	}
	if w.len() != 2 {
		t.Fatalf("expected bounded size, got %d", w.len())
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := ParseStrategy(""); err != nil || s != StrategyIncremental {
		t.Fatalf("expected default incremental, got %q %v", s, err)
	}
	if s, err := ParseStrategy("Rebuild"); err != nil || s != StrategyRebuild {
		t.Fatalf("expected rebuild, got %q %v", s, err)
	}
	if _, err := ParseStrategy("naive"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
