package practice

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	practiceService "github.com/zhouzirui/canvass-coach/backend/internal/service/practice"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/session"
	"github.com/zhouzirui/canvass-coach/backend/internal/service/voice"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler 会话实时通道：上行音频与控制，下行快照
type WebSocketHandler struct {
	practiceSvc *practiceService.Service
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(practiceSvc *practiceService.Service) *WebSocketHandler {
	return &WebSocketHandler{
		practiceSvc: practiceSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AudioMessage carries one PCM16LE chunk, base64 encoded on the wire.
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
}

// ControlMessage names a session action.
type ControlMessage struct {
	Action string `json:"action"`
}

// MicMessage reports the client's microphone permission.
type MicMessage struct {
	Granted bool `json:"granted"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connectionState struct {
	sessionID string
	session   session.Controls
	audio     *voice.StreamSource
	outbound  chan outgoingMessage
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.practiceSvc.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	audio, err := h.practiceSvc.Audio(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	state := &connectionState{
		sessionID: sessionID,
		session:   sess,
		audio:     audio,
		outbound:  make(chan outgoingMessage, 8),
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		defer conn.Close()
		return h.writeLoop(ctx, conn, state, sess.Done())
	})
	g.Go(func() error {
		return h.readLoop(ctx, g, conn, state)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[websocket] session %s closed: %v", sessionID, err)
	}
}

var errSessionClosed = errors.New("session closed")

// writeLoop is the only writer on conn.
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, state *connectionState, closed <-chan struct{}) error {
	snapshots, unsubscribe := state.session.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return errSessionClosed
		case snap, ok := <-snapshots:
			if !ok {
				return errSessionClosed
			}
			if err := write(conn, outgoingMessage{Type: "snapshot", SessionID: state.sessionID, Data: snap}); err != nil {
				return err
			}
		case msg := <-state.outbound:
			if err := write(conn, msg); err != nil {
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func write(conn *websocket.Conn, msg outgoingMessage) error {
	msg.Timestamp = time.Now().Unix()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, g *errgroup.Group, conn *websocket.Conn, state *connectionState) error {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
				return err
			}
			return context.Canceled
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, g, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, g *errgroup.Group, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		var audio AudioMessage
		if err := json.Unmarshal(msg.Data, &audio); err != nil {
			h.sendError(ctx, state, "invalid audio payload")
			return
		}
		state.audio.Push(audio.AudioData)
	case "control":
		var ctrl ControlMessage
		if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
			h.sendError(ctx, state, "invalid control payload")
			return
		}
		if ctrl.Action == "connect" {
			// connect blocks until the backend answers
			g.Go(func() error {
				if err := applyControl(ctx, state.session, ctrl.Action); err != nil {
					h.sendError(ctx, state, err.Error())
				}
				return nil
			})
			return
		}
		if err := applyControl(ctx, state.session, ctrl.Action); err != nil {
			h.sendError(ctx, state, err.Error())
		}
	case "mic":
		var mic MicMessage
		if err := json.Unmarshal(msg.Data, &mic); err != nil {
			h.sendError(ctx, state, "invalid mic payload")
			return
		}
		state.audio.SetPermission(mic.Granted)
	default:
		h.sendError(ctx, state, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) sendError(ctx context.Context, state *connectionState, message string) {
	msg := outgoingMessage{
		Type:      "error",
		SessionID: state.sessionID,
		Data:      map[string]string{"message": message},
	}
	select {
	case state.outbound <- msg:
	case <-ctx.Done():
	}
}
