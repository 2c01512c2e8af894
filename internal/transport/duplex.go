package transport

import (
	"context"

	"github.com/ariavoice/streamkit/internal/playback"
	"github.com/ariavoice/streamkit/internal/session"
	"github.com/ariavoice/streamkit/internal/shared"
)

// Duplex adapts the session protocol client to the SpeechTransport
// contract, routing its binary segments into the playback buffer.
type Duplex struct {
	client *session.Client
	buf    *playback.Buffer
}

func NewDuplex(client *session.Client, buf *playback.Buffer, onError func(*shared.SessionError)) *Duplex {
	client.OnAudioChunk(buf.Enqueue)
	if onError != nil {
		client.OnError(onError)
	}
	return &Duplex{client: client, buf: buf}
}

func (d *Duplex) Speak(ctx context.Context, text string) error {
	return d.client.Speak(ctx, text)
}

func (d *Duplex) Cancel() {
	d.client.Cancel()
}

func (d *Duplex) End() {
	d.client.End()
}
