package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/clash"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

// summarizeConfigFile builds the list-view projection of a stored document.
// A document that no longer parses still appears in the list, with the parse
// error instead of counts.
func summarizeConfigFile(cf models.ConfigFile) models.ConfigFileSummary {
	summary := models.ConfigFileSummary{
		ID:             cf.ID,
		Name:           cf.Name,
		Revision:       cf.Revision,
		SubscriptionID: cf.SubscriptionID,
		UpdatedAt:      cf.UpdatedAt,
	}
	doc, err := clash.Parse([]byte(cf.Content))
	if err != nil {
		summary.ParseError = err.Error()
		return summary
	}
	summary.ProxyCount = len(doc.Proxies)
	summary.GroupCount = len(doc.ProxyGroups)
	summary.RuleCount = len(doc.Rules)
	summary.Unresolved = len(doc.UnresolvedRuleTargets())
	return summary
}

// ListConfigFilesHandler handles GET requests to list all stored documents.
// @Summary List config files
// @Description Lists every stored configuration document as a summary with proxy, group, rule and unresolved-target counts.
// @Tags ConfigFiles
// @Produce json
// @Success 200 {array} models.ConfigFileSummary
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /config-files [get]
func ListConfigFilesHandler(w http.ResponseWriter, r *http.Request) {
	files, err := database.GetAllConfigFiles()
	if err != nil {
		logger.Error("ListConfigFilesHandler: Error fetching config files: %v", err)
		http.Error(w, "Failed to retrieve config files", http.StatusInternalServerError)
		return
	}

	summaries := make([]models.ConfigFileSummary, 0, len(files))
	for _, cf := range files {
		summaries = append(summaries, summarizeConfigFile(cf))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// CreateConfigFileHandler handles POST requests to store a new document.
// The content must parse as a proxy configuration before it is accepted.
// @Summary Create a config file
// @Description Stores a new configuration document. The YAML content is parsed first and rejected with the parse error when malformed.
// @Tags ConfigFiles
// @Accept json
// @Produce json
// @Param config_file body models.ConfigFileCreateRequest true "Name and YAML content"
// @Success 201 {object} models.ConfigFile
// @Failure 400 {object} models.ErrorResponse "Missing fields or malformed YAML"
// @Failure 409 {object} models.ErrorResponse "A document with that name already exists"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /config-files [post]
func CreateConfigFileHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ConfigFileCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("CreateConfigFileHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "Content is required", http.StatusBadRequest)
		return
	}
	if _, err := clash.Parse([]byte(req.Content)); err != nil {
		logger.Error("CreateConfigFileHandler: Rejecting unparseable content for '%s': %v", req.Name, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Content does not parse: " + err.Error()})
		return
	}

	created, err := database.CreateConfigFile(req.Name, req.Content, nil)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			logger.Error("CreateConfigFileHandler: Config file name '%s' already exists: %v", req.Name, err)
			http.Error(w, fmt.Sprintf("A config file named '%s' already exists.", req.Name), http.StatusConflict)
		} else {
			logger.Error("CreateConfigFileHandler: Error creating config file '%s': %v", req.Name, err)
			http.Error(w, "Failed to create config file", http.StatusInternalServerError)
		}
		return
	}

	logger.Info("Created config file '%s' (ID %d).", created.Name, created.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// GetConfigFileHandler handles GET requests for a single document including
// its raw content.
func GetConfigFileHandler(w http.ResponseWriter, r *http.Request, configFileID int64) {
	cf, err := database.GetConfigFileByID(configFileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Config file not found", http.StatusNotFound)
		} else {
			logger.Error("GetConfigFileHandler: Error fetching config file %d: %v", configFileID, err)
			http.Error(w, "Failed to retrieve config file", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cf)
}

// UpdateConfigFileHandler handles PUT requests replacing a document's content
// directly, guarded by the revision the client last read.
// @Summary Update config file content
// @Description Replaces the stored YAML. The write is refused with 409 when the stored revision no longer matches the one in the request.
// @Tags ConfigFiles
// @Accept json
// @Produce json
// @Param id path int true "Config file ID"
// @Param update body models.ConfigFileUpdateRequest true "New content and the revision it was based on"
// @Success 200 {object} models.ConfigFile
// @Failure 400 {object} models.ErrorResponse "Malformed YAML"
// @Failure 404 {object} models.ErrorResponse "Config file not found"
// @Failure 409 {object} models.ErrorResponse "Stale revision"
// @Router /config-files/{id} [put]
func UpdateConfigFileHandler(w http.ResponseWriter, r *http.Request, configFileID int64) {
	var req models.ConfigFileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("UpdateConfigFileHandler: Error decoding request body for config file %d: %v", configFileID, err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "Content is required", http.StatusBadRequest)
		return
	}
	if _, err := clash.Parse([]byte(req.Content)); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Content does not parse: " + err.Error()})
		return
	}

	newRevision, err := database.UpdateConfigFileContent(configFileID, req.Content, req.Revision)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "Config file not found", http.StatusNotFound)
		case errors.Is(err, database.ErrStaleRevision):
			logger.Info("UpdateConfigFileHandler: Stale revision %d for config file %d (stored %d).", req.Revision, configFileID, newRevision)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ErrorResponse{Message: fmt.Sprintf("Config file was changed by someone else (stored revision %d, yours %d). Reload and retry.", newRevision, req.Revision)})
		default:
			logger.Error("UpdateConfigFileHandler: Error updating config file %d: %v", configFileID, err)
			http.Error(w, "Failed to update config file", http.StatusInternalServerError)
		}
		return
	}

	updated, err := database.GetConfigFileByID(configFileID)
	if err != nil {
		logger.Error("UpdateConfigFileHandler: Error re-reading config file %d after update: %v", configFileID, err)
		http.Error(w, "Failed to read back updated config file", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// RenameConfigFileHandler handles POST requests renaming a document.
func RenameConfigFileHandler(w http.ResponseWriter, r *http.Request, configFileID int64) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("RenameConfigFileHandler: Error decoding request body for config file %d: %v", configFileID, err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusBadRequest)
		return
	}

	if err := database.RenameConfigFile(configFileID, req.Name); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "Config file not found", http.StatusNotFound)
		case strings.Contains(err.Error(), "UNIQUE constraint failed"):
			http.Error(w, fmt.Sprintf("A config file named '%s' already exists.", req.Name), http.StatusConflict)
		default:
			logger.Error("RenameConfigFileHandler: Error renaming config file %d: %v", configFileID, err)
			http.Error(w, "Failed to rename config file", http.StatusInternalServerError)
		}
		return
	}

	renamed, err := database.GetConfigFileByID(configFileID)
	if err != nil {
		logger.Error("RenameConfigFileHandler: Error re-reading config file %d after rename: %v", configFileID, err)
		http.Error(w, "Failed to read back renamed config file", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(renamed)
}

// DeleteConfigFileHandler handles DELETE requests removing a document.
func DeleteConfigFileHandler(w http.ResponseWriter, r *http.Request, configFileID int64) {
	if err := database.DeleteConfigFile(configFileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Config file not found", http.StatusNotFound)
		} else {
			logger.Error("DeleteConfigFileHandler: Error deleting config file %d: %v", configFileID, err)
			http.Error(w, "Failed to delete config file", http.StatusInternalServerError)
		}
		return
	}
	logger.Info("Deleted config file %d.", configFileID)
	w.WriteHeader(http.StatusNoContent)
}

// OpenEditSessionHandler handles POST requests opening a server-side edit
// session on a stored document.
// @Summary Open an edit session
// @Description Loads and parses the stored document into a new server-side edit session keyed by UUID. All edit operations then go through /edit-sessions/{sessionID}.
// @Tags EditSessions
// @Produce json
// @Param id path int true "Config file ID"
// @Success 201 {object} models.EditSessionResponse
// @Failure 404 {object} models.ErrorResponse "Config file not found"
// @Failure 422 {object} models.ErrorResponse "Stored content does not parse"
// @Router /config-files/{id}/edit [post]
func OpenEditSessionHandler(w http.ResponseWriter, r *http.Request, configFileID int64) {
	cf, err := database.GetConfigFileByID(configFileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Config file not found", http.StatusNotFound)
		} else {
			logger.Error("OpenEditSessionHandler: Error fetching config file %d: %v", configFileID, err)
			http.Error(w, "Failed to retrieve config file", http.StatusInternalServerError)
		}
		return
	}

	session, err := editorStore.Open(cf)
	if err != nil {
		logger.Error("OpenEditSessionHandler: Stored content of config file %d does not parse: %v", configFileID, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Stored content does not parse: " + err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}
