package transcript

import (
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-scribe/internal/recognition"
)

var (
	// ErrUnsupported is returned by every command when no recognition engine is
	// available.
	ErrUnsupported = errors.New("speech recognition is not supported")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("reconciler closed")
)

// ErrorCode classifies engine failures for presentation.
type ErrorCode string

const (
	PermissionDenied   ErrorCode = "permission_denied"
	NoSpeechDetected   ErrorCode = "no_speech_detected"
	NoMicrophone       ErrorCode = "no_microphone"
	NetworkUnavailable ErrorCode = "network_unavailable"
	UnknownEngineError ErrorCode = "unknown_engine_error"
)

const (
	kindStartFailed   recognition.ErrorKind = "start-failed"
	kindRestartFailed recognition.ErrorKind = "restart-failed"
)

// EngineError is the user-facing form of an engine error. Engine errors end
// the listening session.
type EngineError struct {
	Code    ErrorCode
	Kind    recognition.ErrorKind
	Message string
	cause   error
}

func (e *EngineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *EngineError) Unwrap() error { return e.cause }

// ErrorFor maps a raw engine error kind to its code and message.
func ErrorFor(kind recognition.ErrorKind) *EngineError {
	switch kind {
	case recognition.ErrorNotAllowed:
		return &EngineError{Code: PermissionDenied, Kind: kind, Message: "Microphone access denied. Please allow microphone permissions and reload the page."}
	case recognition.ErrorNoSpeech:
		return &EngineError{Code: NoSpeechDetected, Kind: kind, Message: "No speech was detected. Please try speaking louder."}
	case recognition.ErrorAudioCapture:
		return &EngineError{Code: NoMicrophone, Kind: kind, Message: "No microphone was found. Please ensure a microphone is connected."}
	case recognition.ErrorNetwork:
		return &EngineError{Code: NetworkUnavailable, Kind: kind, Message: "Network error occurred. Please check your internet connection."}
	default:
		return &EngineError{Code: UnknownEngineError, Kind: kind, Message: fmt.Sprintf("Speech recognition error: %s", kind)}
	}
}

func causedError(kind recognition.ErrorKind, cause error) *EngineError {
	e := ErrorFor(kind)
	e.cause = cause
	return e
}
