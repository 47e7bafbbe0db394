package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

// ListProbesHandler handles GET requests to list all controller probes.
func ListProbesHandler(w http.ResponseWriter, r *http.Request) {
	probes, err := database.GetAllProbes()
	if err != nil {
		logger.Error("ListProbesHandler: Error fetching probes: %v", err)
		http.Error(w, "Failed to retrieve probes", http.StatusInternalServerError)
		return
	}
	if probes == nil {
		probes = []models.Probe{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(probes)
}

// CreateProbeHandler handles POST requests to register a controller probe.
// @Summary Register a probe
// @Description Registers a Clash/Mihomo external controller endpoint for the panel to poll.
// @Tags Probes
// @Accept json
// @Produce json
// @Param probe body models.ProbeCreateRequest true "Probe to register"
// @Success 201 {object} models.Probe
// @Failure 400 {string} string "Invalid payload"
// @Failure 409 {object} models.ErrorResponse "Name already in use"
// @Router /probes [post]
func CreateProbeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProbeCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("CreateProbeHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.BaseURL) == "" {
		http.Error(w, "Probe name and base_url are required", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(req.BaseURL, "http://") && !strings.HasPrefix(req.BaseURL, "https://") {
		http.Error(w, "Probe base_url must start with http:// or https://", http.StatusBadRequest)
		return
	}

	probe, err := database.CreateProbe(req)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ErrorResponse{Message: "A probe named '" + strings.TrimSpace(req.Name) + "' already exists."})
			return
		}
		logger.Error("CreateProbeHandler: Error creating probe: %v", err)
		http.Error(w, "Failed to create probe", http.StatusInternalServerError)
		return
	}
	logger.Info("Registered probe '%s' (ID %d) at %s.", probe.Name, probe.ID, probe.BaseURL)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(probe)
}

// GetProbeHandler handles GET requests for a single probe by ID.
func GetProbeHandler(w http.ResponseWriter, r *http.Request, probeID int64) {
	probe, err := database.GetProbeByID(probeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Probe not found", http.StatusNotFound)
		} else {
			logger.Error("GetProbeHandler: Error fetching probe %d: %v", probeID, err)
			http.Error(w, "Failed to retrieve probe", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(probe)
}

// UpdateProbeHandler handles PUT requests to update probe fields.
func UpdateProbeHandler(w http.ResponseWriter, r *http.Request, probeID int64) {
	var req models.ProbeUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("UpdateProbeHandler: Error decoding request body for probe %d: %v", probeID, err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.BaseURL != nil && !strings.HasPrefix(*req.BaseURL, "http://") && !strings.HasPrefix(*req.BaseURL, "https://") {
		http.Error(w, "Probe base_url must start with http:// or https://", http.StatusBadRequest)
		return
	}

	probe, err := database.UpdateProbe(probeID, req)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "Probe not found", http.StatusNotFound)
		case strings.Contains(err.Error(), "UNIQUE constraint failed"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Another probe already uses that name."})
		default:
			logger.Error("UpdateProbeHandler: Error updating probe %d: %v", probeID, err)
			http.Error(w, "Failed to update probe", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(probe)
}

// DeleteProbeHandler handles DELETE requests to remove a probe and its samples.
func DeleteProbeHandler(w http.ResponseWriter, r *http.Request, probeID int64) {
	if err := database.DeleteProbe(probeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Probe not found", http.StatusNotFound)
			return
		}
		logger.Error("DeleteProbeHandler: Error deleting probe %d: %v", probeID, err)
		http.Error(w, "Failed to delete probe", http.StatusInternalServerError)
		return
	}
	logger.Info("Deleted probe %d.", probeID)
	w.WriteHeader(http.StatusNoContent)
}

// PollProbeHandler handles POST requests to poll a probe's controller now.
// @Summary Poll a probe
// @Description Queries the controller's version, connections and traffic totals and stores the outcome. The snapshot is returned even when the controller is unreachable; check the error field.
// @Tags Probes
// @Produce json
// @Param probeID path int true "Probe ID"
// @Success 200 {object} models.ProbeStatus
// @Failure 404 {string} string "Probe not found"
// @Router /probes/{probeID}/poll [post]
func PollProbeHandler(w http.ResponseWriter, r *http.Request, probeID int64) {
	probe, err := database.GetProbeByID(probeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Probe not found", http.StatusNotFound)
		} else {
			logger.Error("PollProbeHandler: Error fetching probe %d: %v", probeID, err)
			http.Error(w, "Failed to retrieve probe", http.StatusInternalServerError)
		}
		return
	}

	status := probePoller.Poll(r.Context(), probe)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// GetProbeStatusHandler handles GET requests for a live controller snapshot
// without persisting anything.
func GetProbeStatusHandler(w http.ResponseWriter, r *http.Request, probeID int64) {
	probe, err := database.GetProbeByID(probeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Probe not found", http.StatusNotFound)
		} else {
			logger.Error("GetProbeStatusHandler: Error fetching probe %d: %v", probeID, err)
			http.Error(w, "Failed to retrieve probe", http.StatusInternalServerError)
		}
		return
	}

	status := probePoller.Status(r.Context(), probe)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// GetProbeTrafficHandler handles GET requests for a probe's stored traffic samples.
// @Summary Get traffic samples
// @Description Returns a probe's stored up/down samples, oldest first. Defaults to the last hour.
// @Tags Probes
// @Produce json
// @Param probeID path int true "Probe ID"
// @Param since query string false "RFC3339 lower bound (default one hour ago)"
// @Param limit query int false "Maximum samples to return (default 500)"
// @Success 200 {array} models.TrafficSample
// @Failure 400 {string} string "Invalid since timestamp"
// @Failure 404 {string} string "Probe not found"
// @Router /probes/{probeID}/traffic [get]
func GetProbeTrafficHandler(w http.ResponseWriter, r *http.Request, probeID int64) {
	if _, err := database.GetProbeByID(probeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Probe not found", http.StatusNotFound)
		} else {
			logger.Error("GetProbeTrafficHandler: Error fetching probe %d: %v", probeID, err)
			http.Error(w, "Failed to retrieve probe", http.StatusInternalServerError)
		}
		return
	}

	since := time.Now().Add(-time.Hour)
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			http.Error(w, "Invalid since timestamp, expected RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	samples, err := database.GetTrafficSamples(probeID, since, limit)
	if err != nil {
		logger.Error("GetProbeTrafficHandler: Error fetching samples for probe %d: %v", probeID, err)
		http.Error(w, "Failed to retrieve traffic samples", http.StatusInternalServerError)
		return
	}
	if samples == nil {
		samples = []models.TrafficSample{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(samples)
}

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// trafficFrame is one message pushed down the live traffic websocket.
type trafficFrame struct {
	Up   int64 `json:"up"`
	Down int64 `json:"down"`
}

// StreamProbeTrafficHandler upgrades to a websocket and forwards the probe's
// live traffic readings until either side disconnects.
func StreamProbeTrafficHandler(w http.ResponseWriter, r *http.Request, probeID int64) {
	probe, err := database.GetProbeByID(probeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Probe not found", http.StatusNotFound)
		} else {
			logger.Error("StreamProbeTrafficHandler: Error fetching probe %d: %v", probeID, err)
			http.Error(w, "Failed to retrieve probe", http.StatusInternalServerError)
		}
		return
	}

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("StreamProbeTrafficHandler: Upgrade failed for probe %d: %v", probeID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read pump only exists to notice the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	logger.Info("Streaming live traffic for probe '%s' (ID %d).", probe.Name, probe.ID)
	err = probePoller.StreamTraffic(ctx, probe, func(up, down int64) error {
		return conn.WriteJSON(trafficFrame{Up: up, Down: down})
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("StreamProbeTrafficHandler: Stream for probe %d ended: %v", probeID, err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "upstream stream failed"),
			time.Now().Add(time.Second))
	}
}
