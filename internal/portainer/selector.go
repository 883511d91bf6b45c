package portainer

import "sync"

// Selector picks the active backend client. In auto mode the real
// client is used once configured, unless the operator forces mock mode;
// real and mock modes are fixed at startup.
type Selector struct {
	mu        sync.Mutex
	mode      string // "auto", "real" or "mock"
	real      Client
	mock      *MockClient
	forceMock bool
}

// NewSelector builds a selector. real may be nil when no connection is
// configured yet.
func NewSelector(mode string, real Client, forceMock bool) *Selector {
	return &Selector{
		mode:      mode,
		real:      real,
		mock:      NewMockClient(),
		forceMock: forceMock,
	}
}

// Current returns the client deployments should go through right now.
func (s *Selector) Current() Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIsMock() {
		return s.mock
	}
	return s.real
}

// EffectiveMode reports "real" or "mock" for status endpoints.
func (s *Selector) EffectiveMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIsMock() {
		return "mock"
	}
	return "real"
}

// ForceMock reports whether the operator override is active.
func (s *Selector) ForceMock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceMock
}

// SetForceMock toggles the operator override. It only has an effect in
// auto mode and reports the resulting effective mode.
func (s *Selector) SetForceMock(force bool) string {
	s.mu.Lock()
	s.forceMock = force
	s.mu.Unlock()
	return s.EffectiveMode()
}

// SetReal swaps the real client after a settings change.
func (s *Selector) SetReal(client Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.real = client
}

// Mock exposes the in-memory backend for inspection endpoints.
func (s *Selector) Mock() *MockClient {
	return s.mock
}

func (s *Selector) currentIsMock() bool {
	switch s.mode {
	case "mock":
		return true
	case "real":
		return s.real == nil
	default: // auto
		return s.real == nil || s.forceMock
	}
}
