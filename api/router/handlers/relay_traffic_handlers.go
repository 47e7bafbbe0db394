package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

// ListRelayTrafficHandler handles GET requests to list relay connection logs.
// @Summary List relay traffic
// @Description Retrieves connections handled by the relay listeners with pagination, protocol and host filters.
// @Tags Relay
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Records per page (default 50, max 200)"
// @Param sort_by query string false "Sort key: started_at, bytes_sent, bytes_received, duration_ms, id"
// @Param sort_order query string false "ASC or DESC"
// @Param protocol query string false "Only http or socks5 connections"
// @Param host query string false "Substring match on target host"
// @Param since query string false "RFC3339 lower bound on connection start"
// @Success 200 {object} models.PaginatedResponse
// @Failure 500 {string} string "Failed to retrieve relay traffic"
// @Router /relay/traffic [get]
func ListRelayTrafficHandler(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()

	page, _ := strconv.Atoi(queryParams.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(queryParams.Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	filters := models.RelayTrafficFilters{
		Page:       page,
		Limit:      limit,
		SortBy:     queryParams.Get("sort_by"),
		SortOrder:  queryParams.Get("sort_order"),
		Protocol:   strings.TrimSpace(queryParams.Get("protocol")),
		HostSearch: strings.TrimSpace(queryParams.Get("host")),
		Since:      strings.TrimSpace(queryParams.Get("since")),
	}

	logs, totalRecords, err := database.GetRelayTrafficPaginated(filters)
	if err != nil {
		logger.Error("ListRelayTrafficHandler: Error fetching relay traffic: %v", err)
		http.Error(w, "Failed to retrieve relay traffic", http.StatusInternalServerError)
		return
	}

	response := models.PaginatedResponse{
		Page:         page,
		Limit:        limit,
		TotalRecords: int(totalRecords),
		TotalPages:   int((totalRecords + int64(limit) - 1) / int64(limit)),
		Records:      logs,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("ListRelayTrafficHandler: Error encoding response: %v", err)
	}
}

// GetRelayTrafficSummaryHandler handles GET requests for aggregate relay usage.
func GetRelayTrafficSummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := database.GetRelayTrafficSummary()
	if err != nil {
		logger.Error("GetRelayTrafficSummaryHandler: Error summarizing relay traffic: %v", err)
		http.Error(w, "Failed to summarize relay traffic", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
