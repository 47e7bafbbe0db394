package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterBackupRoutes wires up whole-panel export and restore.
func RegisterBackupRoutes(r chi.Router) {
	r.Get("/backup/export", ExportBackupHandler)
	r.Post("/backup/import", ImportBackupHandler)
}
