package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRelayTrafficRoutes wires up relay traffic log endpoints.
func RegisterRelayTrafficRoutes(r chi.Router) {
	r.Get("/relay/traffic", ListRelayTrafficHandler)
	r.Get("/relay/traffic/summary", GetRelayTrafficSummaryHandler)
}
