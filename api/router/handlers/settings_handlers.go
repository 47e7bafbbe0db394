package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/config"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

// GetPanelSettingsHandler retrieves the user-tunable panel settings.
func GetPanelSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetPanelSettings()
	if err != nil {
		logger.Error("GetPanelSettingsHandler: Error getting panel settings: %v", err)
		http.Error(w, "Failed to retrieve panel settings", http.StatusInternalServerError)
		return
	}
	if settings.DefaultReplacementTarget == "" {
		settings.DefaultReplacementTarget = "DIRECT"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

// SavePanelSettingsHandler saves the user-tunable panel settings.
// @Summary Save panel settings
// @Description Writes the panel display name, default replacement target and subscription user agent.
// @Tags Settings
// @Accept json
// @Produce json
// @Param settings body models.PanelSettings true "Settings to store"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {string} string "Invalid payload"
// @Router /settings/app [put]
func SavePanelSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var settings models.PanelSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		logger.Error("SavePanelSettingsHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := database.SetPanelSettings(settings); err != nil {
		logger.Error("SavePanelSettingsHandler: Error saving panel settings: %v", err)
		http.Error(w, "Failed to save panel settings", http.StatusInternalServerError)
		return
	}
	logger.Info("Panel settings updated.")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.MessageResponse{Message: "Panel settings saved successfully."})
}

// GetReplacementTargetHandler retrieves the default target offered when
// repairing unresolved rules. Falls back to DIRECT when unset.
func GetReplacementTargetHandler(w http.ResponseWriter, r *http.Request) {
	target, err := database.GetSetting(models.DefaultReplacementTargetKey)
	if err != nil {
		logger.Error("GetReplacementTargetHandler: Error getting replacement target: %v", err)
		http.Error(w, "Failed to retrieve replacement target", http.StatusInternalServerError)
		return
	}
	if target == "" {
		target = "DIRECT"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"target": target})
}

// SetReplacementTargetHandler saves the default replacement target.
func SetReplacementTargetHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("SetReplacementTargetHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	target := strings.TrimSpace(req.Target)
	if target == "" {
		http.Error(w, "Replacement target cannot be empty", http.StatusBadRequest)
		return
	}

	if err := database.SetSetting(models.DefaultReplacementTargetKey, target); err != nil {
		logger.Error("SetReplacementTargetHandler: Error saving replacement target: %v", err)
		http.Error(w, "Failed to save replacement target", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.MessageResponse{Message: "Replacement target saved successfully."})
}

// RuntimeSettingsResponse is the read-only view of the loaded configuration.
// Auth settings are deliberately absent.
type RuntimeSettingsResponse struct {
	ServerPort         string `json:"server_port"`
	RelayHTTPPort      string `json:"relay_http_port"`
	RelaySocksPort     string `json:"relay_socks_port"`
	RelayEgressProxy   string `json:"relay_egress_proxy,omitempty"`
	FetchUserAgent     string `json:"fetch_user_agent"`
	FetchEgressProxy   string `json:"fetch_egress_proxy,omitempty"`
	SyncIntervalSec    int    `json:"sync_interval_seconds"`
	ProbeIntervalSec   int    `json:"probe_interval_seconds"`
	SampleRetentionDay int    `json:"sample_retention_days"`
}

// GetRuntimeSettingsHandler exposes the effective runtime configuration so the
// dashboard can show where the relay listens and how often schedulers run.
// Changing these requires editing the config file or environment and restarting.
func GetRuntimeSettingsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		logger.Error("GetRuntimeSettingsHandler: MethodNotAllowed: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := RuntimeSettingsResponse{
		ServerPort:         config.AppConfig.Server.Port,
		RelayHTTPPort:      config.AppConfig.Relay.HTTPPort,
		RelaySocksPort:     config.AppConfig.Relay.SocksPort,
		RelayEgressProxy:   config.AppConfig.Relay.EgressProxy,
		FetchUserAgent:     config.AppConfig.Fetch.UserAgent,
		FetchEgressProxy:   config.AppConfig.Fetch.EgressProxy,
		SyncIntervalSec:    config.AppConfig.Sync.SchedulerIntervalSeconds,
		ProbeIntervalSec:   config.AppConfig.Probe.SchedulerIntervalSeconds,
		SampleRetentionDay: config.AppConfig.Probe.SampleRetentionDays,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("GetRuntimeSettingsHandler: Error encoding response: %v", err)
		http.Error(w, "Failed to encode settings", http.StatusInternalServerError)
	}
}
