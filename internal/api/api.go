// Package api exposes the dictation session and the correction provider over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/correction"
	"github.com/loqalabs/loqa-scribe/internal/dictation"
	"github.com/loqalabs/loqa-scribe/internal/eventstore"
	"github.com/loqalabs/loqa-scribe/internal/export"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

const (
	maxBodyBytes      = 1 << 20
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

type Options struct {
	// CorrectionTimeout bounds a single POST /correct call.
	CorrectionTimeout time.Duration
	// Recognition, when set, is mounted on /recognition/ws.
	Recognition http.Handler
}

type Server struct {
	session   *dictation.Session
	corrector correction.Corrector
	opts      Options
	log       *slog.Logger
}

func New(session *dictation.Session, corrector correction.Corrector, opts Options, logger *slog.Logger) *Server {
	if corrector == nil {
		corrector = correction.Unconfigured("")
	}
	if opts.CorrectionTimeout <= 0 {
		opts.CorrectionTimeout = correction.DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		session:   session,
		corrector: corrector,
		opts:      opts,
		log:       logger.With(slog.String("component", "api")),
	}
}

// Register mounts every route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /correct", s.handleCorrect)
	mux.HandleFunc("GET /correct/status", s.handleCorrectStatus)

	mux.HandleFunc("GET /transcript", s.handleTranscript)
	mux.HandleFunc("POST /transcript/start", s.handleStart)
	mux.HandleFunc("POST /transcript/stop", s.handleStop)
	mux.HandleFunc("POST /transcript/clear", s.handleClear)
	mux.HandleFunc("PUT /transcript/correction", s.handleCorrectionToggle)
	mux.HandleFunc("GET /transcript/export", s.handleExport)
	mux.HandleFunc("GET /transcript/events", s.handleEvents)

	if s.opts.Recognition != nil {
		mux.Handle("GET /recognition/ws", s.opts.Recognition)
	}
}

// Handler returns a mux carrying only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type correctRequest struct {
	Text *string `json:"text"`
}

type correctResponse struct {
	CorrectedText string `json:"correctedText"`
}

type statusResponse struct {
	Available bool `json:"available"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	if !s.corrector.Available() {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: correction.UnavailableReason(s.corrector)})
		return
	}

	var req correctRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidation(w, invalidBody())
		return
	}
	var verr ValidationError
	if req.Text == nil || strings.TrimSpace(*req.Text) == "" {
		verr.Add("text", "Text is required")
	}
	if verr.Failed() {
		writeValidation(w, &verr)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.CorrectionTimeout)
	defer cancel()
	corrected, err := s.corrector.Correct(ctx, *req.Text)
	if err != nil {
		s.log.Error("correction request failed", slogError(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Failed to correct text"})
		return
	}
	writeJSON(w, http.StatusOK, correctResponse{CorrectedText: corrected})
}

func (s *Server) handleCorrectStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Available: s.corrector.Available()})
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.session.Start(); err != nil {
		s.writeCommandError(w, "start", err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.session.Stop(); err != nil {
		s.writeCommandError(w, "stop", err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.session.Clear()
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleCorrectionToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidation(w, invalidBody())
		return
	}
	if req.Enabled == nil {
		var verr ValidationError
		verr.Add("enabled", "Enabled is required")
		writeValidation(w, &verr)
		return
	}
	s.session.SetCorrectionEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	name, data, err := s.session.Export()
	if errors.Is(err, export.ErrEmptyTranscript) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Transcript is empty"})
		return
	}
	if err != nil {
		s.log.Error("export failed", slogError(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Failed to export transcript"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type eventsResponse struct {
	SessionID string             `json:"session_id"`
	Events    []eventstore.Event `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			var verr ValidationError
			verr.Add("limit", "Limit must be a positive integer")
			writeValidation(w, &verr)
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := s.session.Events(r.Context(), limit)
	if err != nil {
		s.log.Error("list timeline failed", slogError(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Failed to load events"})
		return
	}
	if events == nil {
		events = []eventstore.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{SessionID: s.session.ID(), Events: events})
}

func (s *Server) writeCommandError(w http.ResponseWriter, command string, err error) {
	switch {
	case errors.Is(err, transcript.ErrUnsupported):
		writeJSON(w, http.StatusNotImplemented, messageResponse{Message: "Speech recognition is not supported"})
	case errors.Is(err, transcript.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: "Session is shutting down"})
	default:
		s.log.Warn("recognition command failed", slog.String("command", command), slogError(err))
		writeJSON(w, http.StatusBadGateway, messageResponse{Message: fmt.Sprintf("Failed to %s recognition", command)})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
