package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantErr  bool
	}{
		{
			name:     "ready frame",
			input:    `{"type":"tts.ready"}`,
			wantType: TypeReady,
		},
		{
			name:     "start acknowledgement",
			input:    `{"type":"tts.start"}`,
			wantType: TypeStart,
		},
		{
			name:     "heartbeat",
			input:    `{"type":"ping"}`,
			wantType: TypePing,
		},
		{
			name:     "unknown type still parses",
			input:    `{"type":"tts.future_thing","x":1}`,
			wantType: "tts.future_thing",
		},
		{
			name:    "missing type",
			input:   `{"text":"hello"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `RIFF....WAVE`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", ev.Type, tt.wantType)
			}
		})
	}
}

func TestParseEvent_Viseme(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"tts.viseme","time_ms":240.5,"morph":"aa","weight":0.8}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Viseme == nil {
		t.Fatal("Viseme is nil")
	}
	if ev.Viseme.TimeMs != 240.5 {
		t.Errorf("TimeMs = %v, want 240.5", ev.Viseme.TimeMs)
	}
	if ev.Viseme.Morph != "aa" {
		t.Errorf("Morph = %q, want %q", ev.Viseme.Morph, "aa")
	}
	if ev.Viseme.Weight != 0.8 {
		t.Errorf("Weight = %v, want 0.8", ev.Viseme.Weight)
	}
}

func TestParseEvent_ErrorFrames(t *testing.T) {
	for _, input := range []string{
		`{"type":"tts.error","code":"synthesis_failed","status":500,"message":"boom"}`,
		`{"type":"error","code":"synthesis_failed","status":500,"message":"boom"}`,
	} {
		ev, err := ParseEvent([]byte(input))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Error == nil {
			t.Fatal("Error is nil")
		}
		if ev.Error.Code != "synthesis_failed" {
			t.Errorf("Code = %q, want synthesis_failed", ev.Error.Code)
		}
		if ev.Error.Status != 500 {
			t.Errorf("Status = %d, want 500", ev.Error.Status)
		}
	}
}

func TestNewStartCommand(t *testing.T) {
	cmd := NewStartCommand(StartOptions{
		VoiceID:    "coach_f1",
		Model:      "aria-2",
		Format:     "pcm_s16le",
		SampleRate: 24000,
		Lang:       "en",
	})

	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != TypeStart {
		t.Errorf("type = %v, want %s", got["type"], TypeStart)
	}
	if got["voiceId"] != "coach_f1" {
		t.Errorf("voiceId = %v, want coach_f1", got["voiceId"])
	}
	if got["sampleRate"] != float64(24000) {
		t.Errorf("sampleRate = %v, want 24000", got["sampleRate"])
	}
}

func TestWrapMeta(t *testing.T) {
	original := json.RawMessage(`{"type":"tts.word_boundary","offset":12}`)
	wrapped := WrapMeta(original)

	var frame MetaFrame
	if err := json.Unmarshal(wrapped, &frame); err != nil {
		t.Fatalf("unmarshal wrapped frame: %v", err)
	}
	if frame.Type != TypeMeta {
		t.Errorf("Type = %q, want %s", frame.Type, TypeMeta)
	}

	var inner map[string]any
	if err := json.Unmarshal(frame.Data, &inner); err != nil {
		t.Fatalf("unmarshal inner frame: %v", err)
	}
	if inner["type"] != "tts.word_boundary" {
		t.Errorf("inner type = %v, want tts.word_boundary", inner["type"])
	}
}
