package handlers

import (
	"net/http"
	"strconv"

	"github.com/iluobei/miaomiaowu-sub001/logger"

	"github.com/go-chi/chi/v5"
)

func RegisterConfigFileRoutes(r chi.Router) {
	// Collection routes for /config-files
	r.Get("/config-files", ListConfigFilesHandler)
	r.Post("/config-files", CreateConfigFileHandler)

	// Routes for specific documents: /config-files/{configFileID}
	r.Route("/config-files/{configFileID}", func(subRouter chi.Router) {
		subRouter.Get("/", func(w http.ResponseWriter, req *http.Request) {
			configFileIDStr := chi.URLParam(req, "configFileID")
			configFileID, err := strconv.ParseInt(configFileIDStr, 10, 64)
			if err != nil {
				logger.Error("RegisterConfigFileRoutes: Invalid configFileID format '%s': %v", configFileIDStr, err)
				http.Error(w, "Invalid config file ID format", http.StatusBadRequest)
				return
			}
			GetConfigFileHandler(w, req, configFileID)
		})
		subRouter.Put("/", func(w http.ResponseWriter, req *http.Request) {
			configFileID, err := strconv.ParseInt(chi.URLParam(req, "configFileID"), 10, 64)
			if err != nil {
				http.Error(w, "Invalid config file ID format", http.StatusBadRequest)
				return
			}
			UpdateConfigFileHandler(w, req, configFileID)
		})
		subRouter.Delete("/", func(w http.ResponseWriter, req *http.Request) {
			configFileID, err := strconv.ParseInt(chi.URLParam(req, "configFileID"), 10, 64)
			if err != nil {
				http.Error(w, "Invalid config file ID format", http.StatusBadRequest)
				return
			}
			DeleteConfigFileHandler(w, req, configFileID)
		})
		subRouter.Post("/rename", func(w http.ResponseWriter, req *http.Request) {
			configFileID, err := strconv.ParseInt(chi.URLParam(req, "configFileID"), 10, 64)
			if err != nil {
				http.Error(w, "Invalid config file ID format", http.StatusBadRequest)
				return
			}
			RenameConfigFileHandler(w, req, configFileID)
		})
		subRouter.Post("/edit", func(w http.ResponseWriter, req *http.Request) {
			configFileID, err := strconv.ParseInt(chi.URLParam(req, "configFileID"), 10, 64)
			if err != nil {
				http.Error(w, "Invalid config file ID format", http.StatusBadRequest)
				return
			}
			OpenEditSessionHandler(w, req, configFileID)
		})
	})
}
