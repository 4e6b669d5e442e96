package practice

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	practiceService "github.com/zhouzirui/canvass-coach/backend/internal/service/practice"
	"github.com/zhouzirui/canvass-coach/backend/pkg/utils"
)

// Handler 练习会话的HTTP处理器
type Handler struct {
	practiceSvc *practiceService.Service
}

// New 创建练习会话处理器
func New(practiceSvc *practiceService.Service) *Handler {
	return &Handler{
		practiceSvc: practiceSvc,
	}
}

// RegisterRoutes 注册练习会话相关的路由，r 挂载在 /sessions 下
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleCreateSession)
	r.Get("/", h.handleListSessions)
	r.Get("/{sessionID}", h.handleGetSession)
	r.Delete("/{sessionID}", h.handleCloseSession)
	r.Post("/{sessionID}/restart", h.handleRestartSession)
	r.Post("/{sessionID}/{action}", h.handleControl)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload practiceService.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info, err := h.practiceSvc.Create(r.Context(), payload)
	if err != nil {
		utils.RespondError(w, createStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, info)
}

func createStatus(err error) int {
	switch {
	case errors.Is(err, practiceService.ErrScriptRequired),
		errors.Is(err, practiceService.ErrScriptNotFound),
		errors.Is(err, practiceService.ErrUnknownBackend),
		errors.Is(err, practiceService.ErrNothingToReplay):
		return http.StatusBadRequest
	case errors.Is(err, practiceService.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleListSessions 列出会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.practiceSvc.List())
}

// handleGetSession 返回会话快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.practiceSvc.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}

// handleCloseSession 关闭会话
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.practiceSvc.Close(chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRestartSession 以相同脚本和后端重新开始
func (h *Handler) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.practiceSvc.Restart(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, createStatus(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, info)
}

// handleControl 执行 connect/disconnect/mute/unmute/pause/resume
func (h *Handler) handleControl(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := h.practiceSvc.Get(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	action := chi.URLParam(r, "action")
	if err := applyControl(r.Context(), sess, action); err != nil {
		log.Printf("[practice] %s %s failed: %v", sessionID, action, err)
		utils.RespondError(w, controlStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, sess.Snapshot())
}
