package transport

import (
	"context"
	"log/slog"

	"github.com/ariavoice/streamkit/internal/fallback"
	"github.com/ariavoice/streamkit/internal/playback"
	"github.com/ariavoice/streamkit/internal/shared"
)

// Streaming adapts the one-shot streaming fallback client to the
// SpeechTransport contract. Each Speak runs the blocking call on its own
// goroutine so command methods return immediately, matching the duplex
// path.
type Streaming struct {
	client  *fallback.Client
	buf     *playback.Buffer
	base    fallback.Request
	onError func(*shared.SessionError)
	onDone  func()
	log     *slog.Logger
}

type StreamingConfig struct {
	Client  *fallback.Client
	Buffer  *playback.Buffer
	Voice   fallback.Request // Text is ignored; carries voice/model/format defaults
	OnError func(*shared.SessionError)
	OnDone  func()
	Logger  *slog.Logger
}

func NewStreaming(cfg StreamingConfig) *Streaming {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Streaming{
		client:  cfg.Client,
		buf:     cfg.Buffer,
		base:    cfg.Voice,
		onError: cfg.OnError,
		onDone:  cfg.OnDone,
		log:     log,
	}
}

func (s *Streaming) Speak(ctx context.Context, text string) error {
	req := s.base
	req.Text = text

	cb := fallback.Callbacks{
		OnAudio: s.buf.Enqueue,
		OnError: s.onError,
		OnDone:  s.onDone,
	}

	go func() {
		if err := s.client.Speak(ctx, req, cb); err != nil {
			s.log.Warn("streaming speak failed", "error", err)
			if s.onError != nil {
				s.onError(shared.NewSessionError(shared.KindConnectFailed, "", err.Error()))
			}
		}
	}()
	return nil
}

func (s *Streaming) Cancel() {
	s.client.Cancel()
}

// End is a no-op for the one-shot transport; the stream ends when the
// response body drains.
func (s *Streaming) End() {}
