package handlers

import (
	"github.com/go-chi/chi/v5"
)

func RegisterRuleProviderRoutes(r chi.Router) {
	// Placeholder
	r.Get("/rule-providers", ListRuleProvidersHandler)
	r.Post("/rule-providers/{name}/refresh", RefreshRuleProviderHandler)
}
