package transport

import (
	"context"
	"log/slog"
	"sync"
)

// Selector holds whichever SpeechTransport is active. Mode is chosen by
// the caller, never auto-detected; switching cancels the previous mode's
// in-flight work before handing over.
type Selector struct {
	log *slog.Logger

	mu        sync.Mutex
	mode      Mode
	duplex    SpeechTransport
	streaming SpeechTransport
}

func NewSelector(duplex, streaming SpeechTransport, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{
		log:       log,
		mode:      ModeDuplex,
		duplex:    duplex,
		streaming: streaming,
	}
}

func (s *Selector) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the active transport, cancelling the outgoing one's
// in-flight operation first.
func (s *Selector) SetMode(mode Mode) {
	s.mu.Lock()
	if mode == s.mode {
		s.mu.Unlock()
		return
	}
	previous := s.active()
	s.mode = mode
	s.mu.Unlock()

	previous.Cancel()
	s.log.Debug("transport mode switched", "mode", mode.String())
}

func (s *Selector) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	t := s.active()
	s.mu.Unlock()
	return t.Speak(ctx, text)
}

func (s *Selector) Cancel() {
	s.mu.Lock()
	t := s.active()
	s.mu.Unlock()
	t.Cancel()
}

func (s *Selector) End() {
	s.mu.Lock()
	t := s.active()
	s.mu.Unlock()
	t.End()
}

func (s *Selector) active() SpeechTransport {
	if s.mode == ModeStreaming {
		return s.streaming
	}
	return s.duplex
}
