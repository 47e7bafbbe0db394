package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterAuthRoutes registers the authenticated account routes. The login
// route itself is registered on the public router.
func RegisterAuthRoutes(r chi.Router) {
	r.Post("/auth/logout", LogoutHandler)
	r.Get("/auth/me", MeHandler)
	r.Post("/auth/change-password", ChangePasswordHandler)
}
