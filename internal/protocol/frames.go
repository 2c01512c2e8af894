package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame type discriminators used on the duplex channel. Commands flow
// client-to-server as JSON text frames; audio flows server-to-client as
// binary frames.
const (
	TypeStart  = "tts.start"
	TypeText   = "tts.text"
	TypeSSML   = "tts.ssml"
	TypeCancel = "tts.cancel"
	TypeEnd    = "tts.end"

	TypeReady    = "tts.ready"
	TypeViseme   = "tts.viseme"
	TypeMeta     = "tts.meta"
	TypeError    = "tts.error"
	TypeErrorAlt = "error"
	TypePing     = "ping"
)

// StartOptions configures a synthesis session.
type StartOptions struct {
	VoiceID    string
	Model      string
	Format     string
	SampleRate int
	Lang       string
}

type StartCommand struct {
	Type       string `json:"type"`
	VoiceID    string `json:"voiceId,omitempty"`
	Model      string `json:"model,omitempty"`
	Format     string `json:"format,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Lang       string `json:"lang,omitempty"`
}

type TextCommand struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type SSMLCommand struct {
	Type string `json:"type"`
	SSML string `json:"ssml"`
}

// SignalCommand carries type-only commands (tts.cancel, tts.end).
type SignalCommand struct {
	Type string `json:"type"`
}

func NewStartCommand(opts StartOptions) StartCommand {
	return StartCommand{
		Type:       TypeStart,
		VoiceID:    opts.VoiceID,
		Model:      opts.Model,
		Format:     opts.Format,
		SampleRate: opts.SampleRate,
		Lang:       opts.Lang,
	}
}

// Viseme is a lip-sync progress marker aligned to the audio timeline.
type Viseme struct {
	TimeMs float64 `json:"time_ms"`
	Morph  string  `json:"morph"`
	Weight float64 `json:"weight"`
}

// ErrorFrame is the structured error payload declared by the remote
// synthesis service.
type ErrorFrame struct {
	Code    string `json:"code"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type VisemeFrame struct {
	Type string `json:"type"`
	Viseme
}

type MetaFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is a parsed inbound text frame. Exactly one of Viseme and Error
// is non-nil when Type is tts.viseme or tts.error/error respectively.
// Raw always holds the original frame bytes.
type Event struct {
	Type   string
	Viseme *Viseme
	Error  *ErrorFrame
	Raw    json.RawMessage
}

// ParseEvent decodes an inbound text frame by its type discriminator.
// Frames with an unrecognized type still parse successfully; the caller
// folds them into the meta channel.
func ParseEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Event{}, fmt.Errorf("parse frame: %w", err)
	}
	if head.Type == "" {
		return Event{}, fmt.Errorf("parse frame: missing type discriminator")
	}

	ev := Event{Type: head.Type, Raw: data}

	switch head.Type {
	case TypeViseme:
		var v Viseme
		if err := json.Unmarshal(data, &v); err != nil {
			return Event{}, fmt.Errorf("parse viseme frame: %w", err)
		}
		ev.Viseme = &v
	case TypeError, TypeErrorAlt:
		var e ErrorFrame
		if err := json.Unmarshal(data, &e); err != nil {
			return Event{}, fmt.Errorf("parse error frame: %w", err)
		}
		ev.Error = &e
	}

	return ev, nil
}

// WrapMeta envelopes an unrecognized frame so it survives on the meta
// channel instead of being dropped.
func WrapMeta(original json.RawMessage) json.RawMessage {
	wrapped, err := json.Marshal(MetaFrame{Type: TypeMeta, Data: original})
	if err != nil {
		return original
	}
	return wrapped
}
