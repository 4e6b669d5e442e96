package stream

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/canvass-coach/backend/internal/service/session"
	"github.com/zhouzirui/canvass-coach/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Source resolves the read-only view of a session.
type Source interface {
	View(id string) (session.View, error)
}

// Handler pushes session snapshots via Server-Sent Events
type Handler struct {
	sessions  Source
	heartbeat time.Duration
}

// New creates a new stream handler
func New(sessions Source) *Handler {
	return &Handler{sessions: sessions, heartbeat: heartbeatInterval}
}

// RegisterRoutes adds the event stream to a router mounted at /sessions.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/{sessionID}/events", h.handleEvents)
}

// StreamResponse is the payload of status and error events.
type StreamResponse struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
	Time      string `json:"time,omitempty"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	view, err := h.sessions.View(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, view); err != nil {
		log.Printf("[stream] error handling request: %v", err)
	}
}

// HandleStreamRequest writes every snapshot of view until the client leaves
// or the session closes.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, view session.View) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	snapshots, unsubscribe := view.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	log.Printf("[stream] opening snapshot stream for session=%s", view.ID())

	for {
		select {
		case <-ctx.Done():
			log.Printf("[stream] closing snapshot stream for session=%s", view.ID())
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				utils.SendSSEEvent(w, flusher, "end", StreamResponse{
					Event:     "end",
					SessionID: view.ID(),
					Message:   "session closed",
				})
				return nil
			}
			utils.SendSSEEvent(w, flusher, "snapshot", snap)
		case t := <-ticker.C:
			utils.SendSSEEvent(w, flusher, "heartbeat", StreamResponse{
				Event:     "heartbeat",
				SessionID: view.ID(),
				Time:      t.UTC().Format(time.RFC3339),
			})
		}
	}
}
