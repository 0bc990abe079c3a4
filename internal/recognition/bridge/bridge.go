// Package bridge drives a browser Web Speech session over a WebSocket. The
// browser page forwards every recognition callback as a protocol.RecognitionEvent
// and executes the commands it receives.
package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/recognition"
)

const (
	writeWait    = 5 * time.Second
	maxFrameSize = 256 << 10
)

// Engine is a recognition.Engine backed by a single WebSocket client. A second
// client is refused while one is attached.
type Engine struct {
	cfg      recognition.Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	attached bool
	active   bool
	handler  recognition.Handler

	writeMu sync.Mutex
}

func New(cfg recognition.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg: cfg,
		log: logger.With(slog.String("component", "recognition.bridge")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (e *Engine) OnEvent(h recognition.Handler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

func (e *Engine) Start() error {
	cmd := recognition.Command(protocol.CommandStart, e.cfg)
	if err := e.send(protocol.BridgeFrame{Type: protocol.FrameCommand, Command: &cmd}); err != nil {
		return err
	}
	e.mu.Lock()
	e.active = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) Stop() error {
	cmd := recognition.Command(protocol.CommandStop, e.cfg)
	return e.send(protocol.BridgeFrame{Type: protocol.FrameCommand, Command: &cmd})
}

func (e *Engine) Abort() error {
	cmd := recognition.Command(protocol.CommandAbort, e.cfg)
	return e.send(protocol.BridgeFrame{Type: protocol.FrameCommand, Command: &cmd})
}

// Push sends a transcript snapshot for the page to render. It is a no-op when
// no client is attached.
func (e *Engine) Push(update protocol.TranscriptUpdate) error {
	err := e.send(protocol.BridgeFrame{Type: protocol.FrameTranscript, Transcript: &update})
	if err == recognition.ErrNotConnected {
		return nil
	}
	return err
}

// Connected reports whether a recognition client is attached.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

// Close disconnects the current client, if any.
func (e *Engine) Close() {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return
	}
	e.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeWait))
	e.writeMu.Unlock()
	_ = conn.Close()
}

// ServeHTTP upgrades the request and pumps recognition events until the client
// goes away.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	if e.attached {
		e.mu.Unlock()
		http.Error(w, "recognition client already connected", http.StatusConflict)
		return
	}
	e.attached = true
	e.mu.Unlock()

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.mu.Lock()
		e.attached = false
		e.mu.Unlock()
		e.log.Warn("websocket upgrade failed", slogError(err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
	e.log.Info("recognition client connected", slog.String("remote", r.RemoteAddr))

	e.readLoop(conn)
}

func (e *Engine) readLoop(conn *websocket.Conn) {
	defer e.detach(conn)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				e.log.Warn("recognition client read failed", slogError(err))
			}
			return
		}

		var msg protocol.RecognitionEvent
		if err := json.Unmarshal(payload, &msg); err != nil {
			e.log.Warn("dropping malformed recognition event", slogError(err))
			continue
		}
		evt, err := recognition.FromWire(msg)
		if err != nil {
			e.log.Warn("dropping invalid recognition event", slogError(err))
			continue
		}

		e.mu.Lock()
		switch evt.(type) {
		case recognition.StartEvent:
			e.active = true
		case recognition.EndEvent:
			e.active = false
		}
		h := e.handler
		e.mu.Unlock()

		if h != nil {
			h(evt)
		}
	}
}

// detach releases the client slot. A client lost mid-session is reported as an
// aborted engine followed by End.
func (e *Engine) detach(conn *websocket.Conn) {
	e.mu.Lock()
	if e.conn == conn {
		e.conn = nil
		e.attached = false
	}
	active := e.active
	e.active = false
	h := e.handler
	e.mu.Unlock()

	_ = conn.Close()
	e.log.Info("recognition client disconnected")

	if active && h != nil {
		h(recognition.ErrorEvent{Kind: recognition.ErrorAborted})
		h(recognition.EndEvent{})
	}
}

func (e *Engine) send(frame protocol.BridgeFrame) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return recognition.ErrNotConnected
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s frame: %w", frame.Type, err)
	}
	return nil
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
