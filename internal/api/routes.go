package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/bankcards-api/internal/api/middleware"
	"github.com/phrazzld/bankcards-api/internal/domain"
)

// Handlers groups the handlers mounted under /api.
type Handlers struct {
	Auth      *AuthHandler
	Cards     *CardHandler
	AdminCard *AdminCardHandler
	Transfers *TransferHandler
	Users     *UserHandler
}

// RegisterRoutes mounts the /api routes on r. Everything except
// registration and login requires a bearer token; /api/admin additionally
// requires the ADMIN role.
func RegisterRoutes(r chi.Router, h Handlers, auth *middleware.AuthMiddleware) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Get("/cards", h.Cards.ListCards)
			r.Get("/cards/{id}", h.Cards.GetCard)
			r.Get("/cards/{id}/balance", h.Cards.GetBalance)
			r.Post("/cards/{id}/block-request", h.Cards.RequestBlock)

			r.Post("/transfers", h.Transfers.CreateTransfer)
			r.Get("/transfers", h.Transfers.ListTransfers)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(domain.RoleAdmin))

				r.Post("/cards", h.AdminCard.CreateCard)
				r.Get("/cards", h.AdminCard.ListCards)
				r.Get("/cards/{id}", h.AdminCard.GetCard)
				r.Put("/cards/{id}", h.AdminCard.UpdateCard)
				r.Post("/cards/{id}/block", h.AdminCard.BlockCard)
				r.Post("/cards/{id}/activate", h.AdminCard.ActivateCard)
				r.Delete("/cards/{id}", h.AdminCard.DeleteCard)

				r.Post("/users", h.Users.CreateUser)
				r.Get("/users", h.Users.ListUsers)
				r.Get("/users/{id}", h.Users.GetUser)
				r.Put("/users/{id}", h.Users.UpdateUser)
				r.Get("/users/{id}/stats", h.Users.UserStats)
				r.Delete("/users/{id}", h.Users.DeleteUser)
			})
		})
	})
}
