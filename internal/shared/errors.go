package shared

import (
	"errors"
	"fmt"
)

var (
	ErrSinkFinalized = errors.New("sink finalized")
	ErrNoTransport   = errors.New("no transport")
)

// ErrorKind identifies the classification of a session anomaly. Every
// anomaly that reaches a caller carries exactly one kind; raw transport
// errors are never surfaced unclassified.
type ErrorKind string

const (
	KindReadyTimeout  ErrorKind = "ready_timeout"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindConnectFailed ErrorKind = "connect_failed"
	KindUpstream      ErrorKind = "upstream_error"
	KindDecodeAppend  ErrorKind = "decode_append_failed"
)

// SessionError is a classified error surfaced on the error channel.
// Code and Status carry the server-declared values when the remote side
// reported the failure; both are empty for locally detected anomalies.
type SessionError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
}

func NewSessionError(kind ErrorKind, code, message string) *SessionError {
	return &SessionError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

func (e *SessionError) WithStatus(status int) *SessionError {
	e.Status = status
	return e
}

func (e *SessionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
