package practice

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zhouzirui/canvass-coach/backend/internal/service/session"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/voice"
)

var errUnknownAction = errors.New("unknown action")

// applyControl runs one control action against a session.
func applyControl(ctx context.Context, sess session.Controls, action string) error {
	switch action {
	case "connect":
		return sess.Connect(ctx)
	case "disconnect":
		sess.Disconnect()
	case "mute":
		sess.Mute()
	case "unmute":
		sess.Unmute()
	case "pause":
		paused := true
		sess.TogglePause(&paused)
	case "resume":
		paused := false
		sess.TogglePause(&paused)
	case "toggle":
		sess.TogglePause(nil)
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, action)
	}
	return nil
}

// controlStatus maps a control error to an HTTP status.
func controlStatus(err error) int {
	var (
		credErr *voice.CredentialError
		connErr *voice.ConnectionError
		permErr *voice.PermissionError
	)
	switch {
	case errors.Is(err, errUnknownAction):
		return http.StatusBadRequest
	case errors.As(err, &permErr):
		return http.StatusForbidden
	case errors.As(err, &credErr), errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.Is(err, voice.ErrSessionEnded), errors.Is(err, voice.ErrConnectAborted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
