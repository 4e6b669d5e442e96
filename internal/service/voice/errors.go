package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when the client refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrSessionEnded is returned by Connect on an instance that already ended or failed.
	ErrSessionEnded = errors.New("voice session already ended")
	// ErrConnectAborted is returned by a pending Connect that was overtaken by Disconnect.
	ErrConnectAborted = errors.New("connect aborted by disconnect")
)

// CredentialError reports a failed access token fetch. It is terminal for the instance.
type CredentialError struct {
	Backend Kind
	Err     error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s backend credential fetch failed: %v", e.Backend, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ConnectionError reports a refused or dropped backend connection.
type ConnectionError struct {
	Backend Kind
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s backend connection failed: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PermissionError wraps a microphone acquisition failure. The session stays not-started.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("microphone unavailable: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }
