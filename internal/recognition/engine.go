package recognition

import "errors"

// ErrNotConnected is returned by remote engines when no recognition client is
// attached.
var ErrNotConnected = errors.New("no recognition client connected")

// Handler receives engine events.
type Handler func(Event)

// Engine is the capability set a recognizer exposes. Implementations may invoke
// the registered handler synchronously from Start, Stop or Abort.
type Engine interface {
	Start() error
	Stop() error
	Abort() error
	OnEvent(h Handler)
}

// Config is passed to the engine on every start.
type Config struct {
	Continuous      bool
	InterimResults  bool
	Language        string
	MaxAlternatives int
}

// DefaultConfig returns continuous Urdu recognition with interim results.
func DefaultConfig() Config {
	return Config{
		Continuous:      true,
		InterimResults:  true,
		Language:        "ur-PK",
		MaxAlternatives: 1,
	}
}
