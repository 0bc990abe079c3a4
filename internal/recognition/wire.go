package recognition

import (
	"fmt"

	"github.com/loqalabs/loqa-scribe/internal/protocol"
)

// FromWire converts a client envelope into a typed event.
func FromWire(msg protocol.RecognitionEvent) (Event, error) {
	switch msg.Type {
	case protocol.EventTypeStart:
		return StartEvent{At: msg.Timestamp}, nil
	case protocol.EventTypeEnd:
		return EndEvent{At: msg.Timestamp}, nil
	case protocol.EventTypeError:
		if msg.Error == "" {
			return nil, fmt.Errorf("error event without kind")
		}
		return ErrorEvent{Kind: ErrorKind(msg.Error), At: msg.Timestamp}, nil
	case protocol.EventTypeResult:
		if msg.ResultIndex < 0 {
			return nil, fmt.Errorf("negative result index %d", msg.ResultIndex)
		}
		results := make([]Result, 0, len(msg.Results))
		for _, r := range msg.Results {
			alts := make([]Alternative, 0, len(r.Alternatives))
			for _, a := range r.Alternatives {
				alts = append(alts, Alternative{Transcript: a.Transcript, Confidence: a.Confidence})
			}
			results = append(results, Result{IsFinal: r.IsFinal, Alternatives: alts})
		}
		return ResultEvent{ResultIndex: msg.ResultIndex, Results: results, At: msg.Timestamp}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
}

// ToWire converts a typed event into its client envelope.
func ToWire(evt Event) protocol.RecognitionEvent {
	switch e := evt.(type) {
	case StartEvent:
		return protocol.RecognitionEvent{Type: protocol.EventTypeStart, Timestamp: e.At}
	case EndEvent:
		return protocol.RecognitionEvent{Type: protocol.EventTypeEnd, Timestamp: e.At}
	case ErrorEvent:
		return protocol.RecognitionEvent{Type: protocol.EventTypeError, Error: string(e.Kind), Timestamp: e.At}
	case ResultEvent:
		msg := protocol.RecognitionEvent{Type: protocol.EventTypeResult, ResultIndex: e.ResultIndex, Timestamp: e.At}
		for _, r := range e.Results {
			wire := protocol.RecognitionResult{IsFinal: r.IsFinal}
			for _, a := range r.Alternatives {
				wire.Alternatives = append(wire.Alternatives, protocol.RecognitionAlternative{Transcript: a.Transcript, Confidence: a.Confidence})
			}
			msg.Results = append(msg.Results, wire)
		}
		return msg
	}
	return protocol.RecognitionEvent{}
}

// Command builds the envelope for an engine primitive. Only start carries the
// engine configuration.
func Command(name string, cfg Config) protocol.EngineCommand {
	cmd := protocol.EngineCommand{Command: name}
	if name == protocol.CommandStart {
		cmd.Config = &protocol.EngineConfig{
			Continuous:      cfg.Continuous,
			InterimResults:  cfg.InterimResults,
			Language:        cfg.Language,
			MaxAlternatives: cfg.MaxAlternatives,
		}
	}
	return cmd
}
