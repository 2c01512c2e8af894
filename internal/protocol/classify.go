package protocol

import (
	"net/http"

	"github.com/ariavoice/streamkit/internal/shared"
	"github.com/gorilla/websocket"
)

var authCodes = map[string]bool{
	"unauthorized":    true,
	"forbidden":       true,
	"invalid_api_key": true,
	"auth_failed":     true,
}

// IsAuthError reports whether a server-declared error indicates an auth
// rejection, by code or by HTTP-like status.
func IsAuthError(code string, status int) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	return authCodes[code]
}

// ClassifyErrorFrame normalizes a structured error payload. Auth failures
// are re-labeled unauthorized; everything else passes through as an
// upstream error with its original code.
func ClassifyErrorFrame(f ErrorFrame) *shared.SessionError {
	kind := shared.KindUpstream
	if IsAuthError(f.Code, f.Status) {
		kind = shared.KindUnauthorized
	}
	return shared.NewSessionError(kind, f.Code, f.Message).WithStatus(f.Status)
}

// ClassifyCloseCode maps an abnormal close before readiness to an error
// kind. Policy violation signals an auth rejection at the transport level.
func ClassifyCloseCode(code int) shared.ErrorKind {
	if code == websocket.ClosePolicyViolation {
		return shared.KindUnauthorized
	}
	return shared.KindConnectFailed
}
