package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
)

const (
	alternateWelcome          = "Welcome"
	alternateResults          = string(api.TypeMessageResponse)
	alternateConversationText = "ConversationText"
	alternateError            = "Error"
	alternateKeepAlive        = "KeepAlive"

	// DefaultKeepAlive is well under the remote's idle timeout.
	DefaultKeepAlive = 5 * time.Second
)

// AlternateFrame is one JSON frame received from the alternate voice agent.
type AlternateFrame struct {
	Type        string         `json:"type"`
	ID          string         `json:"id,omitempty"`
	Role        string         `json:"role,omitempty"`
	Content     string         `json:"content,omitempty"`
	Emotions    map[string]any `json:"emotions,omitempty"`
	Description string         `json:"description,omitempty"`
	Code        string         `json:"code,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	// Transcript is set on Results frames.
	Transcript *api.MessageResponse `json:"-"`
	ReceivedAt time.Time            `json:"-"`
}

func (AlternateFrame) Source() Kind { return KindAlternate }

// ErrorText renders an Error frame as a human-readable reason.
func (f AlternateFrame) ErrorText() string {
	text := strings.TrimSpace(f.Description)
	if text == "" {
		text = "voice agent reported an error"
	}
	if f.Code != "" {
		return fmt.Sprintf("%s (%s)", text, f.Code)
	}
	return text
}

// DecodeAlternateFrame parses a text frame from the alternate agent.
func DecodeAlternateFrame(data []byte) (AlternateFrame, error) {
	var frame AlternateFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return frame, fmt.Errorf("decode alternate frame: %w", err)
	}

	switch api.TypeResponse(frame.Type) {
	case api.TypeMessageResponse:
		var results api.MessageResponse
		if err := json.Unmarshal(data, &results); err != nil {
			return frame, fmt.Errorf("decode alternate results: %w", err)
		}
		frame.Transcript = &results
	}
	return frame, nil
}

type alternateControlFrame struct {
	Type string `json:"type"`
}

// AlternateOptions configures the alternate voice agent backend.
type AlternateOptions struct {
	URL    string
	Tokens TokenSource
	// AuthScheme prefixes the token in the Authorization header. Defaults to "Token".
	AuthScheme string
	KeepAlive  time.Duration
	Audio      AudioSource
}

// AlternateAdapter streams binary audio to the alternate agent and keeps the
// link alive with periodic KeepAlive frames.
type AlternateAdapter struct {
	*lifecycle
	opts AlternateOptions
	conn atomic.Pointer[wsConn]
}

func NewAlternate(opts AlternateOptions) *AlternateAdapter {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.AuthScheme == "" {
		opts.AuthScheme = "Token"
	}
	a := &AlternateAdapter{lifecycle: newLifecycle(KindAlternate), opts: opts}
	a.onPause = a.handlePause
	a.cleanup = a.releaseAudio
	return a
}

func (a *AlternateAdapter) Connect(ctx context.Context) error {
	return connectAudio(ctx, a.lifecycle, a.opts.Audio, a.dial)
}

func (a *AlternateAdapter) Disconnect() { a.disconnect() }

func (a *AlternateAdapter) TogglePause(explicit *bool) bool { return a.togglePause(explicit) }

func (a *AlternateAdapter) MicAmplitude() []float64 {
	if a.opts.Audio == nil {
		return nil
	}
	return a.opts.Audio.Amplitude()
}

func (a *AlternateAdapter) dial(ctx context.Context) (*link, error) {
	if a.opts.Tokens == nil {
		return nil, &CredentialError{Backend: KindAlternate, Err: errors.New("no token source configured")}
	}
	token, err := a.opts.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, &CredentialError{Backend: KindAlternate, Err: err}
	}

	header := http.Header{"Authorization": {a.opts.AuthScheme + " " + token}}
	conn, err := dialWebsocket(ctx, a.opts.URL, header)
	if err != nil {
		return nil, &ConnectionError{Backend: KindAlternate, Err: err}
	}
	a.conn.Store(conn)

	return &link{
		start: func(runCtx context.Context) {
			go a.read(runCtx, conn)
			go func() {
				err := runHeartbeat(runCtx, a.opts.KeepAlive, func() error {
					return conn.writeJSON(alternateControlFrame{Type: alternateKeepAlive})
				})
				if err != nil && runCtx.Err() == nil {
					a.fail(&ConnectionError{Backend: KindAlternate, Err: fmt.Errorf("keep-alive: %w", err)})
				}
			}()
			go func() {
				err := pumpAudio(runCtx, a.opts.Audio, a.Muted, conn.writeBinary)
				if err != nil && runCtx.Err() == nil {
					a.fail(&ConnectionError{Backend: KindAlternate, Err: fmt.Errorf("send audio: %w", err)})
				}
			}()
		},
		close: func() {
			conn.close(alternateControlFrame{Type: string(api.TypeCloseStreamResponse)})
		},
	}, nil
}

func (a *AlternateAdapter) read(ctx context.Context, conn *wsConn) {
	err := conn.readLoop(func(data []byte) error {
		frame, err := DecodeAlternateFrame(data)
		if err != nil {
			log.Printf("[alternate] skipping frame: %v", err)
			return nil
		}
		frame.ReceivedAt = time.Now()

		switch frame.Type {
		case alternateError:
			return errors.New(frame.ErrorText())
		case alternateWelcome:
			log.Printf("[alternate] welcome request_id=%s", frame.RequestID)
		}
		a.emitFrame(ctx, frame)
		return nil
	})

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		a.fail(&ConnectionError{Backend: KindAlternate, Err: err})
		return
	}
	a.disconnect()
}

// handlePause keeps the socket and heartbeat running; only capture stops.
func (a *AlternateAdapter) handlePause(paused bool) {
	if a.opts.Audio == nil {
		return
	}
	if paused {
		a.opts.Audio.Pause()
	} else {
		a.opts.Audio.Resume()
	}
}

func (a *AlternateAdapter) releaseAudio() {
	if a.opts.Audio != nil {
		a.opts.Audio.Release()
	}
}
