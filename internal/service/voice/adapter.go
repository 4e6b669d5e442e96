package voice

import (
	"context"
	"fmt"
	"strings"
)

// Kind selects a backend implementation.
type Kind string

const (
	KindLive      Kind = "live"
	KindAlternate Kind = "alternate"
	KindReplay    Kind = "replay"
	KindMock      Kind = "mock"
)

// ParseKind converts user input into a Kind.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindLive, KindAlternate, KindReplay, KindMock:
		return k, nil
	default:
		return "", fmt.Errorf("unknown voice backend %q", raw)
	}
}

// Status is the connection state of an adapter.
type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusPaused     Status = "paused"
	StatusEnded      Status = "ended"
	StatusError      Status = "error"
)

// StatusInfo pairs a status with the reason for an error state.
type StatusInfo struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Terminal reports whether the instance can no longer be used.
func (s StatusInfo) Terminal() bool {
	return s.Status == StatusEnded || s.Status == StatusError
}

// Live reports whether the backend link is up.
func (s StatusInfo) Live() bool {
	return s.Status == StatusConnected || s.Status == StatusPaused
}

// Event carries either a raw backend frame or a status change.
type Event struct {
	Frame  Frame
	Status *StatusInfo
}

// Adapter is the contract every voice backend implements.
type Adapter interface {
	Kind() Kind
	// Connect is idempotent once connected; concurrent callers share one attempt.
	Connect(ctx context.Context) error
	// Disconnect is a no-op when not started; it cancels a pending Connect.
	Disconnect()
	Mute()
	Unmute()
	// TogglePause flips pause, or forces it when explicit is set, and returns the new paused state.
	TogglePause(explicit *bool) bool
	Status() StatusInfo
	Muted() bool
	Events() <-chan Event
	MicAmplitude() []float64
}
