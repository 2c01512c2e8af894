package transport

import "context"

// SpeechTransport is one way of turning text into an ordered binary
// segment stream. Both implementations feed the same playback buffer, so
// downstream playback logic never branches on the transport mode.
type SpeechTransport interface {
	Speak(ctx context.Context, text string) error
	Cancel()
	End()
}

type Mode int

const (
	// ModeDuplex streams over the persistent duplex session.
	ModeDuplex Mode = iota
	// ModeStreaming issues one-shot request/response streaming calls.
	ModeStreaming
)

func (m Mode) String() string {
	switch m {
	case ModeDuplex:
		return "duplex"
	case ModeStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}
