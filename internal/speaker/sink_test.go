package speaker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ariavoice/streamkit/internal/shared"
)

func pcm16(values ...int16) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func TestDecodePCM_Mono(t *testing.T) {
	buf := bytes.NewBuffer(pcm16(16384, -16384, 0))
	samples := make([][2]float64, 4)

	n := decodePCM(buf, samples, 1)
	if n != 3 {
		t.Fatalf("frames = %d, want 3", n)
	}

	wantLeft := []float64{0.5, -0.5, 0}
	for i, want := range wantLeft {
		if math.Abs(samples[i][0]-want) > 1e-9 {
			t.Errorf("sample %d left = %v, want %v", i, samples[i][0], want)
		}
		if samples[i][0] != samples[i][1] {
			t.Errorf("sample %d not duplicated to right channel", i)
		}
	}
}

func TestDecodePCM_Stereo(t *testing.T) {
	buf := bytes.NewBuffer(pcm16(16384, -16384))
	samples := make([][2]float64, 2)

	n := decodePCM(buf, samples, 2)
	if n != 1 {
		t.Fatalf("frames = %d, want 1", n)
	}
	if math.Abs(samples[0][0]-0.5) > 1e-9 {
		t.Errorf("left = %v, want 0.5", samples[0][0])
	}
	if math.Abs(samples[0][1]+0.5) > 1e-9 {
		t.Errorf("right = %v, want -0.5", samples[0][1])
	}
}

func TestSink_AppendAfterFinalize(t *testing.T) {
	s := newSink(16000, 1)

	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := s.Append(pcm16(1, 2)); !errors.Is(err, shared.ErrSinkFinalized) {
		t.Errorf("Append after finalize = %v, want ErrSinkFinalized", err)
	}
}

func TestSink_IdleNotificationPerAppend(t *testing.T) {
	s := newSink(16000, 1)

	var mu sync.Mutex
	idles := 0
	ch := make(chan struct{}, 8)
	s.OnIdle(func() {
		mu.Lock()
		idles++
		mu.Unlock()
		ch <- struct{}{}
	})

	for i := 0; i < 3; i++ {
		if err := s.Append(pcm16(int16(i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("idle notification never fired")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if idles != 3 {
		t.Errorf("idle notifications = %d, want 3", idles)
	}
}

func TestSink_StreamDrainsThenStops(t *testing.T) {
	s := newSink(16000, 1)
	if err := s.Append(pcm16(16384, 16384)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	samples := make([][2]float64, 8)

	// buffered audio plus silence padding while the stream is open
	n, ok := s.Stream(samples)
	if n != len(samples) || !ok {
		t.Fatalf("Stream = (%d, %v), want (%d, true)", n, ok, len(samples))
	}

	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	n, ok = s.Stream(samples)
	if n != 0 || ok {
		t.Fatalf("Stream after drain = (%d, %v), want (0, false)", n, ok)
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done never closed")
	}
}

func TestSink_PartialFrameStillDrains(t *testing.T) {
	s := newSink(16000, 1)

	// one full frame plus a dangling byte
	if err := s.Append(append(pcm16(16384), 0x7F)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	samples := make([][2]float64, 4)
	for i := 0; i < 4; i++ {
		if _, ok := s.Stream(samples); !ok {
			break
		}
	}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done never closed with a partial trailing frame")
	}
}

func TestSink_FinalizeIdempotent(t *testing.T) {
	s := newSink(16000, 1)
	if err := s.Finalize(); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done never closed")
	}
}
