package api

import "sync"

// UnauthorizedSignal is a single-slot callback relay fired whenever an
// authenticated request is answered with an authorization failure. It is
// deliberately not a multi-subscriber bus: the system has exactly one
// legitimate owner at a time (the live session manager), and replace-not-queue
// semantics keep a torn-down owner's handler from firing after replacement.
type UnauthorizedSignal struct {
	mu      sync.Mutex
	handler func()
}

// NewUnauthorizedSignal returns an empty relay. The composition root passes
// the same instance to both the transport and the session manager.
func NewUnauthorizedSignal() *UnauthorizedSignal {
	return &UnauthorizedSignal{}
}

// Register installs handler in the slot, replacing any previous handler.
// Registering nil clears the slot.
func (s *UnauthorizedSignal) Register(handler func()) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Fire invokes the registered handler, if any. The handler runs outside the
// slot lock so it may itself call Register.
func (s *UnauthorizedSignal) Fire() {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler()
	}
}
