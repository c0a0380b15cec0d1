package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/harborsupport/console/internal/handler/console"
	"github.com/harborsupport/console/internal/handler/stream"
	"github.com/harborsupport/console/internal/middleware"
	"github.com/harborsupport/console/internal/service/assist"
	"github.com/harborsupport/console/internal/service/engine"
	"github.com/harborsupport/console/internal/service/upload"
	"github.com/harborsupport/console/internal/upstream/api"
)

// NewRouter wires the console routes to the engine and its collaborators.
// assistSvc may be nil when no model credentials are configured.
func NewRouter(eng *engine.Engine, apiClient *api.Client, uploads *upload.Coordinator, assistSvc *assist.Service, hub *stream.Hub, pageSize int) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	consoleHandler := console.New(eng, apiClient, uploads, assistSvc, pageSize)

	r.Route("/api", func(apiRouter chi.Router) {
		consoleHandler.RegisterRoutes(apiRouter)
		apiRouter.Get("/updates", hub.ServeHTTP)
	})

	return r
}
