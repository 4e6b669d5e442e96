package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/canvass-coach/backend/internal/handler/practice"
	"github.com/zhouzirui/canvass-coach/backend/internal/handler/script"
	"github.com/zhouzirui/canvass-coach/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/canvass-coach/backend/internal/middleware"
	scriptModel "github.com/zhouzirui/canvass-coach/backend/internal/model/script"
	practiceService "github.com/zhouzirui/canvass-coach/backend/internal/service/practice"
	"github.com/zhouzirui/canvass-coach/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(scripts scriptModel.Store, practiceSvc *practiceService.Service, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(corsOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": len(practiceSvc.List()),
		})
	})

	r.Route("/api", func(api chi.Router) {
		script.New(scripts).RegisterRoutes(api)

		api.Route("/sessions", func(sessions chi.Router) {
			practice.New(practiceSvc).RegisterRoutes(sessions)
			stream.New(practiceSvc).RegisterRoutes(sessions)
		})

		practice.NewWebSocketHandler(practiceSvc).RegisterWebSocketRoutes(api)
	})

	return r
}
