package speaker

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ariavoice/streamkit/internal/shared"
	"github.com/gopxl/beep"
	beepspeaker "github.com/gopxl/beep/speaker"
)

// Sink plays PCM s16le segments through the system speaker. It satisfies
// the playback.Sink contract: appends buffer instantly into the streamer,
// the idle notification fires once per completed append, and Finalize
// marks end-of-stream so playback stops when the buffer drains.
type Sink struct {
	format beep.Format

	mu        sync.Mutex
	buf       *bytes.Buffer
	idleFns   []func()
	finalized bool
	drained   bool
	done      chan struct{}
}

// NewSink initializes the system speaker for the given PCM format and
// starts playing the sink.
func NewSink(sampleRate, channels int) (*Sink, error) {
	s := newSink(sampleRate, channels)

	sr := s.format.SampleRate
	if err := beepspeaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	beepspeaker.Play(s)
	return s, nil
}

func newSink(sampleRate, channels int) *Sink {
	if channels <= 0 {
		channels = 1
	}
	return &Sink{
		format: beep.Format{
			SampleRate:  beep.SampleRate(sampleRate),
			NumChannels: channels,
			Precision:   2,
		},
		buf:  bytes.NewBuffer(make([]byte, 0, 8192)),
		done: make(chan struct{}),
	}
}

func (s *Sink) Append(segment []byte) error {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return shared.ErrSinkFinalized
	}
	_, err := s.buf.Write(segment)
	idle := make([]func(), len(s.idleFns))
	copy(idle, s.idleFns)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("append segment: %w", err)
	}

	go func() {
		for _, fn := range idle {
			fn()
		}
	}()
	return nil
}

// Busy is always false: appends complete synchronously into the streamer
// buffer while playback drains on the speaker goroutine.
func (s *Sink) Busy() bool {
	return false
}

func (s *Sink) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil
	}
	s.finalized = true
	// a trailing sub-frame remainder can never decode; drop it so the
	// stream drains to zero
	frameBytes := s.format.NumChannels * 2
	if rem := s.buf.Len() % frameBytes; rem != 0 {
		s.buf.Truncate(s.buf.Len() - rem)
	}
	if s.buf.Len() == 0 {
		s.markDrainedLocked()
	}
	return nil
}

func (s *Sink) OnIdle(fn func()) {
	s.mu.Lock()
	s.idleFns = append(s.idleFns, fn)
	s.mu.Unlock()
}

// Done is closed once the sink is finalized and playback has drained the
// remaining samples.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Stream implements beep.Streamer, pulling s16le bytes from the buffer.
// An empty buffer before finalize yields silence so the stream stays
// alive while segments are still arriving.
func (s *Sink) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drained {
		return 0, false
	}

	if s.buf.Len() == 0 {
		if s.finalized {
			s.markDrainedLocked()
			return 0, false
		}
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}

	n := decodePCM(s.buf, samples, s.format.NumChannels)
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (s *Sink) Err() error {
	return nil
}

func (s *Sink) markDrainedLocked() {
	if !s.drained {
		s.drained = true
		close(s.done)
	}
}

// decodePCM fills samples from little-endian s16 frames, returning the
// number of samples produced. Mono frames are duplicated to both
// channels.
func decodePCM(buf *bytes.Buffer, samples [][2]float64, channels int) int {
	bytesPerFrame := channels * 2
	frames := buf.Len() / bytesPerFrame
	if frames > len(samples) {
		frames = len(samples)
	}

	raw := buf.Next(frames * bytesPerFrame)
	for i := 0; i < frames; i++ {
		off := i * bytesPerFrame
		left := float64(int16(uint16(raw[off])|uint16(raw[off+1])<<8)) / 32768
		right := left
		if channels > 1 {
			right = float64(int16(uint16(raw[off+2])|uint16(raw[off+3])<<8)) / 32768
		}
		samples[i] = [2]float64{left, right}
	}
	return frames
}
