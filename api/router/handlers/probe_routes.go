package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/iluobei/miaomiaowu-sub001/logger"
)

func withProbeID(h func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "probeID")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			logger.Error("RegisterProbeRoutes: Invalid probeID format '%s': %v", idStr, err)
			http.Error(w, "Invalid probe ID format", http.StatusBadRequest)
			return
		}
		h(w, r, id)
	}
}

// RegisterProbeRoutes wires up controller probe endpoints.
func RegisterProbeRoutes(r chi.Router) {
	r.Get("/probes", ListProbesHandler)
	r.Post("/probes", CreateProbeHandler)

	r.Route("/probes/{probeID}", func(probe chi.Router) {
		probe.Get("/", withProbeID(GetProbeHandler))
		probe.Put("/", withProbeID(UpdateProbeHandler))
		probe.Delete("/", withProbeID(DeleteProbeHandler))
		probe.Post("/poll", withProbeID(PollProbeHandler))
		probe.Get("/status", withProbeID(GetProbeStatusHandler))
		probe.Get("/traffic", withProbeID(GetProbeTrafficHandler))
	})
}

// RegisterProbeStreamRoutes wires up the live traffic websocket. It is
// registered separately so the route can sit outside the request timeout
// middleware.
func RegisterProbeStreamRoutes(r chi.Router) {
	r.Get("/probes/{probeID}/stream", withProbeID(StreamProbeTrafficHandler))
}
