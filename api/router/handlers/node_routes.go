package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/iluobei/miaomiaowu-sub001/logger"
)

// RegisterNodeRoutes wires up proxy node endpoints.
func RegisterNodeRoutes(r chi.Router) {
	r.Get("/nodes", ListNodesHandler)
	r.Post("/nodes/import", ImportNodesHandler)
	r.Post("/nodes/check-all", CheckAllNodesHandler)

	r.Route("/nodes/{nodeID}", func(node chi.Router) {
		withID := func(h func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				idStr := chi.URLParam(r, "nodeID")
				id, err := strconv.ParseInt(idStr, 10, 64)
				if err != nil {
					logger.Error("RegisterNodeRoutes: Invalid nodeID format '%s': %v", idStr, err)
					http.Error(w, "Invalid node ID format", http.StatusBadRequest)
					return
				}
				h(w, r, id)
			}
		}

		node.Get("/", withID(GetNodeHandler))
		node.Put("/", withID(UpdateNodeHandler))
		node.Delete("/", withID(DeleteNodeHandler))
		node.Get("/yaml", withID(GetNodeYAMLHandler))
		node.Post("/check", withID(CheckNodeHandler))
	})
}
