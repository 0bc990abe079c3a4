package recognition

import "sync"

// Scripted is an in-process engine. Start and Stop emit the matching callbacks
// synchronously; results and errors are injected with Emit.
type Scripted struct {
	mu       sync.Mutex
	handler  Handler
	running  bool
	startErr error
	starts   int
	stops    int
	aborts   int
}

func NewScripted() *Scripted {
	return &Scripted{}
}

func (s *Scripted) OnEvent(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// FailStart makes subsequent Start calls return err. A nil err clears it.
func (s *Scripted) FailStart(err error) {
	s.mu.Lock()
	s.startErr = err
	s.mu.Unlock()
}

func (s *Scripted) Start() error {
	s.mu.Lock()
	if s.startErr != nil {
		err := s.startErr
		s.mu.Unlock()
		return err
	}
	s.starts++
	s.running = true
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h(StartEvent{})
	}
	return nil
}

func (s *Scripted) Stop() error {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.end()
	return nil
}

func (s *Scripted) Abort() error {
	s.mu.Lock()
	s.aborts++
	s.mu.Unlock()
	s.end()
	return nil
}

// Emit delivers evt as if the engine produced it.
func (s *Scripted) Emit(evt Event) {
	s.mu.Lock()
	if _, ok := evt.(EndEvent); ok {
		s.running = false
	}
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h(evt)
	}
}

// SelfTerminate simulates the engine ending on its own after silence.
func (s *Scripted) SelfTerminate() {
	s.end()
}

func (s *Scripted) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scripted) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *Scripted) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *Scripted) Aborts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborts
}

func (s *Scripted) end() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h(EndEvent{})
	}
}
