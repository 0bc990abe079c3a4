package recognition

import "time"

// Event is one engine callback. The concrete types are StartEvent, ResultEvent,
// ErrorEvent and EndEvent.
type Event interface {
	Time() time.Time
	isEvent()
}

// StartEvent signals that the engine began capturing.
type StartEvent struct {
	At time.Time
}

// EndEvent signals that the engine session terminated, for any reason.
type EndEvent struct {
	At time.Time
}

// ErrorEvent carries the engine's raw error kind, e.g. "not-allowed".
type ErrorEvent struct {
	Kind ErrorKind
	At   time.Time
}

// ResultEvent carries the engine's cumulative result list. Entries before
// ResultIndex were delivered by earlier events.
type ResultEvent struct {
	ResultIndex int
	Results     []Result
	At          time.Time
}

// Result is one recognized segment.
type Result struct {
	IsFinal      bool
	Alternatives []Alternative
}

// Alternative is one hypothesis for a segment.
type Alternative struct {
	Transcript string
	Confidence float64
}

func (e StartEvent) Time() time.Time  { return e.At }
func (e EndEvent) Time() time.Time    { return e.At }
func (e ErrorEvent) Time() time.Time  { return e.At }
func (e ResultEvent) Time() time.Time { return e.At }

func (StartEvent) isEvent()  {}
func (EndEvent) isEvent()    {}
func (ErrorEvent) isEvent()  {}
func (ResultEvent) isEvent() {}

// Transcript returns the text of the first alternative.
func (r Result) Transcript() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0].Transcript
}

// ErrorKind is the raw error identifier reported by an engine.
type ErrorKind string

const (
	ErrorNotAllowed   ErrorKind = "not-allowed"
	ErrorNoSpeech     ErrorKind = "no-speech"
	ErrorAudioCapture ErrorKind = "audio-capture"
	ErrorNetwork      ErrorKind = "network"
	ErrorAborted      ErrorKind = "aborted"
)
