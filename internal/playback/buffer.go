package playback

import (
	"log/slog"
	"sync"

	"github.com/ariavoice/streamkit/internal/shared"
)

// Buffer serializes arrival-ordered binary audio segments into a Sink
// without ever having more than one append in flight. Segments are played
// in the exact order they arrive; a failed append is reported and the
// queue continues with the next segment.
type Buffer struct {
	log *slog.Logger

	mu              sync.Mutex
	sink            Sink
	queue           [][]byte
	inFlight        bool
	finalizePending bool
	onError         func(*shared.SessionError)
}

func NewBuffer(log *slog.Logger) *Buffer {
	if log == nil {
		log = slog.Default()
	}
	return &Buffer{
		log:   log,
		queue: make([][]byte, 0),
	}
}

// SetErrorCallback registers the channel that receives append failures.
func (b *Buffer) SetErrorCallback(fn func(*shared.SessionError)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Bind attaches the sink and registers for its idle notifications. The
// buffer exclusively owns both the sink and the pending queue from here on.
func (b *Buffer) Bind(sink Sink) {
	b.mu.Lock()
	b.sink = sink
	b.finalizePending = false
	b.inFlight = false
	b.mu.Unlock()

	sink.OnIdle(b.sinkIdle)
}

// Enqueue appends a segment to the pending queue and pumps it into the
// sink immediately when nothing is in flight.
func (b *Buffer) Enqueue(segment []byte) {
	b.mu.Lock()
	if b.sink == nil {
		b.mu.Unlock()
		b.log.Warn("segment dropped, no sink bound", "bytes", len(segment))
		return
	}
	b.queue = append(b.queue, segment)
	b.mu.Unlock()

	b.pump()
}

// Pending returns the number of queued segments not yet appended.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Reset empties the pending queue and finalizes the sink. A finalize that
// would race an in-flight append is deferred until that append completes.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.queue = nil
	sink := b.sink
	if sink == nil {
		b.mu.Unlock()
		return
	}
	if b.inFlight || sink.Busy() {
		b.finalizePending = true
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if err := sink.Finalize(); err != nil {
		b.log.Warn("sink finalize failed", "error", err)
	}
}

func (b *Buffer) sinkIdle() {
	b.mu.Lock()
	b.inFlight = false
	b.mu.Unlock()

	b.pump()
}

func (b *Buffer) pump() {
	for {
		b.mu.Lock()
		sink := b.sink
		if sink == nil {
			b.mu.Unlock()
			return
		}
		if b.inFlight || sink.Busy() {
			b.mu.Unlock()
			return
		}
		if len(b.queue) == 0 {
			finalize := b.finalizePending
			b.finalizePending = false
			b.mu.Unlock()
			if finalize {
				if err := sink.Finalize(); err != nil {
					b.log.Warn("sink finalize failed", "error", err)
				}
			}
			return
		}
		segment := b.queue[0]
		b.queue = b.queue[1:]
		b.inFlight = true
		onError := b.onError
		b.mu.Unlock()

		if err := sink.Append(segment); err != nil {
			b.mu.Lock()
			b.inFlight = false
			b.mu.Unlock()

			b.log.Warn("sink rejected segment, continuing", "bytes", len(segment), "error", err)
			if onError != nil {
				onError(shared.NewSessionError(shared.KindDecodeAppend, "", err.Error()))
			}
			continue
		}
		return
	}
}
