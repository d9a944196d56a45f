package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/bankcards-api/internal/api"
	apiMiddleware "github.com/phrazzld/bankcards-api/internal/api/middleware"
)

// setupRouter creates the router with the middleware stack, the API routes
// and the operational endpoints.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(apiMiddleware.Metrics(app.metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Handle("/metrics", app.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(app.config.Server.RequestTimeout))
		api.RegisterRoutes(r, api.Handlers{
			Auth:      api.NewAuthHandler(app.authService, app.logger),
			Cards:     api.NewCardHandler(app.cardService, app.logger),
			AdminCard: api.NewAdminCardHandler(app.cardService, app.logger),
			Transfers: api.NewTransferHandler(app.transferService, app.logger),
			Users:     api.NewUserHandler(app.userService, app.logger),
		}, apiMiddleware.NewAuthMiddleware(app.jwtService))
	})

	return r
}
