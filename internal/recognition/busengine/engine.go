// Package busengine drives a remote recognizer over NATS. Commands go out on
// recognition.control and the recognizer publishes its callbacks on
// recognition.event.
package busengine

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/recognition"
)

type Engine struct {
	client *bus.Client
	cfg    recognition.Config
	log    *slog.Logger

	mu      sync.Mutex
	handler recognition.Handler
	sub     *nats.Subscription
}

func New(client *bus.Client, cfg recognition.Config, logger *slog.Logger) (*Engine, error) {
	if client == nil {
		return nil, errors.New("bus engine requires a bus client")
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		client: client,
		cfg:    cfg,
		log:    logger.With(slog.String("component", "recognition.bus")),
	}
	sub, err := client.Subscribe(protocol.SubjectRecognitionEvent, e.handleMessage)
	if err != nil {
		return nil, err
	}
	e.sub = sub
	e.log.Info("bus recognition engine ready", slog.String("subject", protocol.SubjectRecognitionEvent))
	return e, nil
}

func (e *Engine) OnEvent(h recognition.Handler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

func (e *Engine) Start() error { return e.command(protocol.CommandStart) }

func (e *Engine) Stop() error { return e.command(protocol.CommandStop) }

func (e *Engine) Abort() error { return e.command(protocol.CommandAbort) }

// Close stops consuming recognizer events.
func (e *Engine) Close() error {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (e *Engine) command(name string) error {
	if !e.client.Healthy() {
		return recognition.ErrNotConnected
	}
	return e.client.PublishJSON(protocol.SubjectRecognitionControl, recognition.Command(name, e.cfg))
}

func (e *Engine) handleMessage(msg *nats.Msg) {
	var wire protocol.RecognitionEvent
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		e.log.Warn("dropping malformed recognition event", slog.String("error", err.Error()))
		return
	}
	evt, err := recognition.FromWire(wire)
	if err != nil {
		e.log.Warn("dropping invalid recognition event", slog.String("error", err.Error()))
		return
	}

	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(evt)
	}
}
