package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/iluobei/miaomiaowu-sub001/logger"
)

// RegisterSubscriptionRoutes wires up subscription management endpoints.
func RegisterSubscriptionRoutes(r chi.Router) {
	r.Get("/subscriptions", ListSubscriptionsHandler)
	r.Post("/subscriptions", CreateSubscriptionHandler)
	r.Post("/subscriptions/sync-all", SyncAllSubscriptionsHandler)

	r.Route("/subscriptions/{subscriptionID}", func(sub chi.Router) {
		withID := func(h func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				idStr := chi.URLParam(r, "subscriptionID")
				id, err := strconv.ParseInt(idStr, 10, 64)
				if err != nil {
					logger.Error("RegisterSubscriptionRoutes: Invalid subscriptionID format '%s': %v", idStr, err)
					http.Error(w, "Invalid subscription ID format", http.StatusBadRequest)
					return
				}
				h(w, r, id)
			}
		}

		sub.Get("/", withID(GetSubscriptionHandler))
		sub.Put("/", withID(UpdateSubscriptionHandler))
		sub.Delete("/", withID(DeleteSubscriptionHandler))
		sub.Post("/sync", withID(SyncSubscriptionHandler))
		sub.Get("/preview", withID(PreviewSubscriptionHandler))
	})
}
