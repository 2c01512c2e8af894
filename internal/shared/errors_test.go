package shared

import "testing"

func TestSessionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SessionError
		want string
	}{
		{
			name: "with code",
			err:  NewSessionError(KindUpstream, "synthesis_failed", "voice unavailable"),
			want: "upstream_error (synthesis_failed): voice unavailable",
		},
		{
			name: "without code",
			err:  NewSessionError(KindReadyTimeout, "", "no ready frame"),
			want: "ready_timeout: no ready frame",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionError_WithStatus(t *testing.T) {
	err := NewSessionError(KindUnauthorized, "invalid_api_key", "rejected").WithStatus(401)
	if err.Status != 401 {
		t.Errorf("Status = %d, want 401", err.Status)
	}
	if err.Kind != KindUnauthorized {
		t.Errorf("Kind = %s, want %s", err.Kind, KindUnauthorized)
	}
}
