package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterSettingsRoutes(r chi.Router) {
	r.Route("/settings/app", func(r chi.Router) {
		r.Get("/", GetPanelSettingsHandler)
		r.Put("/", SavePanelSettingsHandler)
	})

	r.Route("/settings/replacement-target", func(r chi.Router) {
		r.Get("/", GetReplacementTargetHandler)
		r.Post("/", SetReplacementTargetHandler)
		r.Put("/", SetReplacementTargetHandler)
	})

	r.Get("/settings/runtime", GetRuntimeSettingsHandler)
}
