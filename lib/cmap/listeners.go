package cmap

// --------------------------------------------------------------------------
// Listener Registry
// --------------------------------------------------------------------------

// AddListener registers a session for change events. Registration is
// idempotent; events produced by commands applied after this log slot are
// delivered to the session through the sink.
func (s *Service) AddListener(sessionID string) {
	s.listeners[sessionID] = struct{}{}
}

// RemoveListener deregisters a session. Unknown sessions are a no-op.
func (s *Service) RemoveListener(sessionID string) {
	delete(s.listeners, sessionID)
}

// HasListener reports whether the session is registered.
func (s *Service) HasListener(sessionID string) bool {
	_, ok := s.listeners[sessionID]
	return ok
}

// ListenerCount returns the number of registered sessions.
func (s *Service) ListenerCount() int {
	return len(s.listeners)
}
