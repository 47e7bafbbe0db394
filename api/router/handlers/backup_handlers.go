package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

// ExportBackupHandler handles GET requests to download a whole-panel backup.
// @Summary Export a backup
// @Description Downloads every configuration table (users, settings, subscriptions, config files, nodes, probes) as one JSON document. Traffic history is not included.
// @Tags Backup
// @Produce json
// @Success 200 {object} models.BackupPayload
// @Failure 500 {string} string "Failed to export backup"
// @Router /backup/export [get]
func ExportBackupHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := database.ExportBackup()
	if err != nil {
		logger.Error("ExportBackupHandler: Error exporting backup: %v", err)
		http.Error(w, "Failed to export backup", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=miaomiaowu-backup-%d.json", time.Now().Unix()))
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("ExportBackupHandler: Error encoding backup payload: %v", err)
	}
}

// ImportBackupHandler handles POST requests to restore a whole-panel backup.
// Everything in the covered tables is replaced; there is no merge.
// @Summary Import a backup
// @Description Replaces the panel's configuration with the uploaded backup in one transaction. Existing users, settings, subscriptions, config files, nodes and probes are dropped first.
// @Tags Backup
// @Accept json
// @Produce json
// @Param backup body models.BackupPayload true "Backup to restore"
// @Success 200 {object} models.BackupImportResult
// @Failure 400 {string} string "Invalid backup payload"
// @Failure 500 {object} models.ErrorResponse "Restore failed; nothing was changed"
// @Router /backup/import [post]
func ImportBackupHandler(w http.ResponseWriter, r *http.Request) {
	var payload models.BackupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Error("ImportBackupHandler: Error decoding backup payload: %v", err)
		http.Error(w, "Invalid backup payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(payload.Users) == 0 {
		// Refuse a restore that would leave the panel with no way to log in.
		http.Error(w, "Backup contains no users; refusing to restore", http.StatusBadRequest)
		return
	}

	result, err := database.ImportBackup(payload)
	if err != nil {
		logger.Error("ImportBackupHandler: Error restoring backup: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Restore failed, the database was left unchanged: " + err.Error()})
		return
	}
	logger.Info("Restored backup: %d users, %d settings, %d subscriptions, %d config files, %d nodes, %d probes.",
		result.Users, result.Settings, result.Subscriptions, result.ConfigFiles, result.Nodes, result.Probes)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
