package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type fakeTransport struct {
	mu      sync.Mutex
	spoken  []string
	cancels int
	ends    int
}

func (f *fakeTransport) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return nil
}

func (f *fakeTransport) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeTransport) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
}

func newTestSelector() (*Selector, *fakeTransport, *fakeTransport) {
	duplex := &fakeTransport{}
	streaming := &fakeTransport{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSelector(duplex, streaming, log), duplex, streaming
}

func TestSelector_DefaultsToDuplex(t *testing.T) {
	s, duplex, streaming := newTestSelector()

	if s.Mode() != ModeDuplex {
		t.Errorf("Mode() = %s, want duplex", s.Mode())
	}
	if err := s.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(duplex.spoken) != 1 || duplex.spoken[0] != "hello" {
		t.Errorf("duplex spoken = %v, want [hello]", duplex.spoken)
	}
	if len(streaming.spoken) != 0 {
		t.Errorf("streaming spoken = %v, want none", streaming.spoken)
	}
}

func TestSelector_SwitchCancelsPrevious(t *testing.T) {
	s, duplex, streaming := newTestSelector()

	_ = s.Speak(context.Background(), "one")
	s.SetMode(ModeStreaming)

	if duplex.cancels != 1 {
		t.Errorf("duplex cancels = %d, want 1", duplex.cancels)
	}

	_ = s.Speak(context.Background(), "two")
	if len(streaming.spoken) != 1 || streaming.spoken[0] != "two" {
		t.Errorf("streaming spoken = %v, want [two]", streaming.spoken)
	}

	s.SetMode(ModeDuplex)
	if streaming.cancels != 1 {
		t.Errorf("streaming cancels = %d, want 1", streaming.cancels)
	}
}

func TestSelector_SetSameModeIsNoop(t *testing.T) {
	s, duplex, _ := newTestSelector()

	s.SetMode(ModeDuplex)
	if duplex.cancels != 0 {
		t.Errorf("cancels = %d, want 0", duplex.cancels)
	}
}

func TestSelector_CancelAndEndRouteToActive(t *testing.T) {
	s, duplex, streaming := newTestSelector()

	s.Cancel()
	s.End()
	if duplex.cancels != 1 || duplex.ends != 1 {
		t.Errorf("duplex cancels/ends = %d/%d, want 1/1", duplex.cancels, duplex.ends)
	}

	s.SetMode(ModeStreaming)
	s.Cancel()
	s.End()
	if streaming.cancels != 1 || streaming.ends != 1 {
		t.Errorf("streaming cancels/ends = %d/%d, want 1/1", streaming.cancels, streaming.ends)
	}
}

func TestMode_String(t *testing.T) {
	if ModeDuplex.String() != "duplex" {
		t.Errorf("ModeDuplex = %s", ModeDuplex.String())
	}
	if ModeStreaming.String() != "streaming" {
		t.Errorf("ModeStreaming = %s", ModeStreaming.String())
	}
}
