package protocol

import "time"

// RecognitionEvent is the JSON envelope a recognition client sends for each
// engine callback (onstart, onresult, onerror, onend).
type RecognitionEvent struct {
	Type        string              `json:"type"`
	ResultIndex int                 `json:"result_index,omitempty"`
	Results     []RecognitionResult `json:"results,omitempty"`
	Error       string              `json:"error,omitempty"`
	Timestamp   time.Time           `json:"timestamp,omitempty"`
}

// RecognitionResult mirrors one entry of the engine's cumulative result list.
type RecognitionResult struct {
	IsFinal      bool                     `json:"is_final"`
	Alternatives []RecognitionAlternative `json:"alternatives"`
}

// RecognitionAlternative is a single hypothesis for a result.
type RecognitionAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence,omitempty"`
}

// EngineCommand instructs a remote recognition client.
type EngineCommand struct {
	Command string        `json:"command"`
	Config  *EngineConfig `json:"config,omitempty"`
}

// EngineConfig is sent with every start command.
type EngineConfig struct {
	Continuous      bool   `json:"continuous"`
	InterimResults  bool   `json:"interim_results"`
	Language        string `json:"lang"`
	MaxAlternatives int    `json:"max_alternatives"`
}

// BridgeFrame is what the server writes to a connected recognition client:
// either an engine command or a transcript snapshot to render.
type BridgeFrame struct {
	Type       string            `json:"type"`
	Command    *EngineCommand    `json:"command,omitempty"`
	Transcript *TranscriptUpdate `json:"transcript,omitempty"`
}

// TranscriptUpdate is broadcast whenever the reconciled transcript changes.
type TranscriptUpdate struct {
	SessionID   string    `json:"session_id"`
	FinalText   string    `json:"final_text"`
	InterimText string    `json:"interim_text"`
	Listening   bool      `json:"listening"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Correction is broadcast when a correction call completes.
type Correction struct {
	SessionID     string    `json:"session_id"`
	Text          string    `json:"text"`
	CorrectedText string    `json:"corrected_text"`
	LatencyMS     int64     `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

const (
	EventTypeStart  = "start"
	EventTypeResult = "result"
	EventTypeError  = "error"
	EventTypeEnd    = "end"

	CommandStart = "start"
	CommandStop  = "stop"
	CommandAbort = "abort"

	FrameCommand    = "command"
	FrameTranscript = "transcript"
)

const (
	SubjectRecognitionControl = "recognition.control"
	SubjectRecognitionEvent   = "recognition.event"
	SubjectTranscriptUpdate   = "transcript.update"
	SubjectTranscriptCorrect  = "transcript.corrected"
)
