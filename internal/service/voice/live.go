package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const (
	liveUserMessage      = "user_message"
	liveAssistantMessage = "assistant_message"
	liveError            = "error"
	liveAudioInput       = "audio_input"
	livePauseAssistant   = "pause_assistant_message"
	liveResumeAssistant  = "resume_assistant_message"
)

// LiveChatMessage is the role/content pair nested in message frames.
type LiveChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type LiveProsody struct {
	Scores map[string]any `json:"scores"`
}

type LiveModels struct {
	Prosody *LiveProsody `json:"prosody,omitempty"`
}

// LiveFrame is one JSON frame received from the live voice agent.
type LiveFrame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	// Message is an object on chat frames and a string on error frames.
	Message    json.RawMessage `json:"message,omitempty"`
	Models     *LiveModels     `json:"models,omitempty"`
	Interim    bool            `json:"interim,omitempty"`
	Code       string          `json:"code,omitempty"`
	Slug       string          `json:"slug,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

func (LiveFrame) Source() Kind { return KindLive }

// ChatMessage decodes the nested chat message, if any.
func (f LiveFrame) ChatMessage() (LiveChatMessage, bool) {
	var msg LiveChatMessage
	if len(f.Message) == 0 || f.Message[0] != '{' {
		return msg, false
	}
	if err := json.Unmarshal(f.Message, &msg); err != nil {
		return msg, false
	}
	return msg, true
}

// ErrorText renders an error frame as a human-readable reason.
func (f LiveFrame) ErrorText() string {
	var text string
	if len(f.Message) > 0 && f.Message[0] == '"' {
		_ = json.Unmarshal(f.Message, &text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = "voice agent reported an error"
	}
	if f.Code != "" {
		return fmt.Sprintf("%s (%s)", text, f.Code)
	}
	return text
}

type liveAudioFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type liveControlFrame struct {
	Type string `json:"type"`
}

// LiveOptions configures the live voice agent backend.
type LiveOptions struct {
	URL      string
	ConfigID string
	Tokens   TokenSource
	Audio    AudioSource
}

// LiveAdapter talks to the live voice agent over a JSON websocket.
type LiveAdapter struct {
	*lifecycle
	opts LiveOptions
	conn atomic.Pointer[wsConn]
}

// NewLive builds a live adapter. Tokens is required; Audio may be nil for text-only use.
func NewLive(opts LiveOptions) *LiveAdapter {
	a := &LiveAdapter{lifecycle: newLifecycle(KindLive), opts: opts}
	a.onPause = a.handlePause
	a.cleanup = a.releaseAudio
	return a
}

func (a *LiveAdapter) Connect(ctx context.Context) error {
	return connectAudio(ctx, a.lifecycle, a.opts.Audio, a.dial)
}

func (a *LiveAdapter) Disconnect() { a.disconnect() }

func (a *LiveAdapter) TogglePause(explicit *bool) bool { return a.togglePause(explicit) }

func (a *LiveAdapter) MicAmplitude() []float64 {
	if a.opts.Audio == nil {
		return nil
	}
	return a.opts.Audio.Amplitude()
}

func (a *LiveAdapter) dial(ctx context.Context) (*link, error) {
	if a.opts.Tokens == nil {
		return nil, &CredentialError{Backend: KindLive, Err: errors.New("no token source configured")}
	}
	token, err := a.opts.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, &CredentialError{Backend: KindLive, Err: err}
	}

	endpoint, err := url.Parse(a.opts.URL)
	if err != nil {
		return nil, &ConnectionError{Backend: KindLive, Err: fmt.Errorf("invalid agent url: %w", err)}
	}
	query := endpoint.Query()
	query.Set("access_token", token)
	if a.opts.ConfigID != "" {
		query.Set("config_id", a.opts.ConfigID)
	}
	endpoint.RawQuery = query.Encode()

	conn, err := dialWebsocket(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, &ConnectionError{Backend: KindLive, Err: err}
	}
	a.conn.Store(conn)

	return &link{
		start: func(runCtx context.Context) {
			go a.read(runCtx, conn)
			go func() {
				err := pumpAudio(runCtx, a.opts.Audio, a.Muted, func(pcm []byte) error {
					return conn.writeJSON(liveAudioFrame{Type: liveAudioInput, Data: base64.StdEncoding.EncodeToString(pcm)})
				})
				if err != nil && runCtx.Err() == nil {
					a.fail(&ConnectionError{Backend: KindLive, Err: fmt.Errorf("send audio: %w", err)})
				}
			}()
		},
		close: func() { conn.close(nil) },
	}, nil
}

func (a *LiveAdapter) read(ctx context.Context, conn *wsConn) {
	err := conn.readLoop(func(data []byte) error {
		var frame LiveFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// unknown shapes are not fatal
			return nil
		}
		frame.ReceivedAt = time.Now()

		if frame.Type == liveError {
			return errors.New(frame.ErrorText())
		}
		a.emitFrame(ctx, frame)
		return nil
	})

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		_, span := tracer.Start(ctx, "live read")
		span.SetAttributes(attribute.String("voice.backend", string(KindLive)))
		span.RecordError(err)
		span.End()
		a.fail(&ConnectionError{Backend: KindLive, Err: err})
		return
	}
	// the agent hung up
	a.disconnect()
}

func (a *LiveAdapter) handlePause(paused bool) {
	if a.opts.Audio != nil {
		if paused {
			a.opts.Audio.Pause()
		} else {
			a.opts.Audio.Resume()
		}
	}

	conn := a.conn.Load()
	if conn == nil {
		return
	}
	frameType := liveResumeAssistant
	if paused {
		frameType = livePauseAssistant
	}
	if err := conn.writeJSON(liveControlFrame{Type: frameType}); err != nil {
		a.fail(&ConnectionError{Backend: KindLive, Err: fmt.Errorf("send %s: %w", frameType, err)})
	}
}

func (a *LiveAdapter) releaseAudio() {
	if a.opts.Audio != nil {
		a.opts.Audio.Release()
	}
}
