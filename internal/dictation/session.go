// Package dictation runs the single dictation session of the process: one
// reconciler, the correction debounce around it, the session timeline and the
// snapshots pushed to clients.
package dictation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-scribe/internal/clock"
	"github.com/loqalabs/loqa-scribe/internal/correction"
	"github.com/loqalabs/loqa-scribe/internal/eventstore"
	"github.com/loqalabs/loqa-scribe/internal/export"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/stats"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

// Timeline event types.
const (
	EventSessionStarted      = "session.started"
	EventTranscriptFinal     = "transcript.final"
	EventRecognitionError    = "recognition.error"
	EventTranscriptCleared   = "transcript.cleared"
	EventCorrectionCompleted = "correction.completed"
	EventCorrectionFailed    = "correction.failed"
)

const storeTimeout = 2 * time.Second

// Publisher fans session updates out to other processes.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

type Options struct {
	Language          string
	CorrectionEnabled bool
	Debounce          time.Duration
	CorrectionTimeout time.Duration
	ExportPrefix      string
	Clock             clock.Clock
}

// ErrorView is the presentable form of an engine error.
type ErrorView struct {
	Code    transcript.ErrorCode `json:"code"`
	Message string               `json:"message"`
}

type CorrectionView struct {
	Enabled       bool   `json:"enabled"`
	Available     bool   `json:"available"`
	Processing    bool   `json:"processing"`
	CorrectedText string `json:"corrected_text"`
	Error         string `json:"error,omitempty"`
}

// Snapshot is everything a client needs to render the session.
type Snapshot struct {
	SessionID   string         `json:"session_id"`
	Supported   bool           `json:"supported"`
	FinalText   string         `json:"final_text"`
	InterimText string         `json:"interim_text"`
	Listening   bool           `json:"listening"`
	Error       *ErrorView     `json:"error,omitempty"`
	Correction  CorrectionView `json:"correction"`
	Stats       stats.Stats    `json:"stats"`
}

// Update converts the snapshot into the bus/bridge envelope.
func (s Snapshot) Update(at time.Time) protocol.TranscriptUpdate {
	u := protocol.TranscriptUpdate{
		SessionID:   s.SessionID,
		FinalText:   s.FinalText,
		InterimText: s.InterimText,
		Listening:   s.Listening,
		Timestamp:   at.UTC(),
	}
	if s.Error != nil {
		u.Error = s.Error.Message
	}
	return u
}

type triggerKey struct {
	listening bool
	final     string
	enabled   bool
}

type Session struct {
	id        string
	rec       *transcript.Reconciler
	corrector correction.Corrector
	debouncer *correction.Debouncer
	store     *eventstore.Store
	publisher Publisher
	opts      Options
	log       *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	unsub     func()

	mu            sync.Mutex
	enabled       bool
	last          transcript.State
	trigger       triggerKey
	corrected     string
	correctionErr string
	corrections   int
	subscribers   map[int]func(Snapshot)
	nextSub       int
}

// New wires a session around rec. store and publisher may be nil.
func New(parent context.Context, rec *transcript.Reconciler, corrector correction.Corrector, store *eventstore.Store, publisher Publisher, opts Options, logger *slog.Logger) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.ExportPrefix == "" {
		opts.ExportPrefix = export.DefaultPrefix
	}
	if corrector == nil {
		corrector = correction.Unconfigured("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:          uuid.NewString(),
		rec:         rec,
		corrector:   corrector,
		store:       store,
		publisher:   publisher,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		startedAt:   opts.Clock.Now(),
		enabled:     opts.CorrectionEnabled,
		subscribers: make(map[int]func(Snapshot)),
	}
	s.log = logger.With(slog.String("component", "dictation"), slog.String("session_id", s.id))
	s.debouncer = correction.NewDebouncer(corrector, correction.DebounceOptions{
		Delay:   opts.Debounce,
		Timeout: opts.CorrectionTimeout,
		Clock:   opts.Clock,
		OnIssue: s.onCorrectionIssued,
	}, s.onCorrectionResult, logger)

	if store != nil {
		sctx, scancel := context.WithTimeout(ctx, storeTimeout)
		if err := store.AppendSession(sctx, s.id, opts.Language); err != nil {
			s.log.Warn("failed to record session", slogError(err))
		}
		scancel()
	}
	s.last = rec.State()
	s.unsub = rec.Subscribe(s.onState)
	return s
}

func (s *Session) ID() string { return s.id }

// Supported reports whether speech recognition is available at all.
func (s *Session) Supported() bool { return s.rec.Supported() }

func (s *Session) Start() error { return s.rec.Start() }

func (s *Session) Stop() error { return s.rec.Stop() }

// Clear empties the transcript and the corrected text.
func (s *Session) Clear() {
	s.rec.Clear()
	s.mu.Lock()
	s.corrected = ""
	s.correctionErr = ""
	s.mu.Unlock()
	s.record(EventTranscriptCleared, nil)
	s.broadcast()
}

// SetCorrectionEnabled toggles automatic correction.
func (s *Session) SetCorrectionEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	state := s.last
	s.mu.Unlock()

	s.evaluateCorrection(state)
	s.broadcast()
}

// CorrectionAvailable reports whether the corrector is configured.
func (s *Session) CorrectionAvailable() bool { return s.corrector.Available() }

func (s *Session) Snapshot() Snapshot {
	state := s.rec.State()
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID:   s.id,
		Supported:   s.rec.Supported(),
		FinalText:   state.FinalText,
		InterimText: state.InterimText,
		Listening:   state.Listening,
		Correction: CorrectionView{
			Enabled:       s.enabled,
			Available:     s.corrector.Available(),
			Processing:    s.debouncer.InFlight(),
			CorrectedText: s.corrected,
			Error:         s.correctionErr,
		},
		Stats: stats.Compute(state.FinalText, s.opts.Clock.Now().Sub(s.startedAt), s.corrections),
	}
	if state.Err != nil {
		snap.Error = &ErrorView{Code: state.Err.Code, Message: state.Err.Message}
	}
	return snap
}

// Subscribe registers fn for every snapshot change.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Events lists the session timeline.
func (s *Session) Events(ctx context.Context, limit int) ([]eventstore.Event, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListSessionEvents(ctx, s.id, limit)
}

// Export returns the file name and content for the current transcript.
func (s *Session) Export() (string, []byte, error) {
	data, err := export.Content(s.rec.State().FinalText)
	if err != nil {
		return "", nil, err
	}
	return export.FileName(s.opts.ExportPrefix, s.opts.Clock.Now()), data, nil
}

// Close stops correction and tears the reconciler down.
func (s *Session) Close() {
	if s.unsub != nil {
		s.unsub()
	}
	s.debouncer.Close()
	s.rec.Close()
	s.cancel()
}

func (s *Session) onState(state transcript.State) {
	s.mu.Lock()
	prev := s.last
	if state.Seq <= prev.Seq {
		s.mu.Unlock()
		s.log.Debug("dropped stale transcript state", slog.Uint64("seq", state.Seq), slog.Uint64("current", prev.Seq))
		return
	}
	s.last = state
	s.mu.Unlock()

	if state.Listening && !prev.Listening {
		s.record(EventSessionStarted, map[string]string{"language": s.opts.Language})
	}
	if state.FinalText != prev.FinalText && len(state.FinalText) > len(prev.FinalText) {
		added := state.FinalText
		if strings.HasPrefix(state.FinalText, prev.FinalText) {
			added = strings.TrimSpace(state.FinalText[len(prev.FinalText):])
		}
		s.record(EventTranscriptFinal, map[string]string{"text": added})
	}
	if state.Err != nil && state.Err != prev.Err {
		s.record(EventRecognitionError, map[string]string{
			"code":    string(state.Err.Code),
			"kind":    string(state.Err.Kind),
			"message": state.Err.Message,
		})
	}

	s.evaluateCorrection(state)
	s.broadcast()
}

// evaluateCorrection arms the debouncer once listening has stopped with text
// on screen and drops it as soon as listening resumes.
func (s *Session) evaluateCorrection(state transcript.State) {
	s.mu.Lock()
	key := triggerKey{listening: state.Listening, final: state.FinalText, enabled: s.enabled}
	changed := key != s.trigger
	s.trigger = key
	s.mu.Unlock()
	if !changed {
		return
	}

	if key.listening || !key.enabled || !s.corrector.Available() || strings.TrimSpace(key.final) == "" {
		s.debouncer.Cancel()
		return
	}
	s.debouncer.Schedule(key.final)
}

func (s *Session) onCorrectionIssued(string) {
	s.mu.Lock()
	s.correctionErr = ""
	s.mu.Unlock()
	s.broadcast()
}

func (s *Session) onCorrectionResult(r correction.Result) {
	s.mu.Lock()
	if r.Err != nil {
		s.correctionErr = "Failed to correct text"
	} else {
		s.corrected = r.Corrected
		s.correctionErr = ""
		s.corrections++
	}
	s.mu.Unlock()

	if r.Err != nil {
		s.record(EventCorrectionFailed, map[string]string{"error": r.Err.Error()})
	} else {
		s.record(EventCorrectionCompleted, map[string]any{
			"corrected_text": r.Corrected,
			"latency_ms":     r.Latency.Milliseconds(),
		})
		s.publish(protocol.SubjectTranscriptCorrect, protocol.Correction{
			SessionID:     s.id,
			Text:          r.Text,
			CorrectedText: r.Corrected,
			LatencyMS:     r.Latency.Milliseconds(),
			Timestamp:     s.opts.Clock.Now().UTC(),
		})
	}
	s.broadcast()
}

func (s *Session) broadcast() {
	snap := s.Snapshot()
	s.publish(protocol.SubjectTranscriptUpdate, snap.Update(s.opts.Clock.Now()))

	s.mu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Session) publish(subject string, v any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(subject, v); err != nil {
		s.log.Warn("failed to publish session update", slog.String("subject", subject), slogError(err))
	}
}

func (s *Session) record(eventType string, payload any) {
	if s.store == nil {
		return
	}
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			s.log.Warn("failed to encode timeline payload", slog.String("type", eventType), slogError(err))
			return
		}
	}
	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()
	err := s.store.AppendEvent(ctx, eventstore.Event{
		SessionID: s.id,
		Type:      eventType,
		Payload:   data,
		CreatedAt: s.opts.Clock.Now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("failed to record timeline event", slog.String("type", eventType), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
