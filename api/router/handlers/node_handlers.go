package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/core"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

// ListNodesHandler handles GET requests to list proxy nodes with pagination.
// @Summary List nodes
// @Description Retrieves proxy nodes with pagination, protocol and subscription filters, and search.
// @Tags Nodes
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Records per page (default 50, max 200)"
// @Param sort_by query string false "Sort key: name, protocol, server, latency_ms, last_checked_at, created_at, id"
// @Param sort_order query string false "ASC or DESC"
// @Param subscription_id query int false "Only nodes imported from this subscription"
// @Param protocol query string false "Only nodes of this protocol (ss, vmess, trojan, ...)"
// @Param search query string false "Substring match on name or server"
// @Success 200 {object} models.PaginatedResponse
// @Failure 500 {string} string "Failed to retrieve nodes"
// @Router /nodes [get]
func ListNodesHandler(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()

	page, _ := strconv.Atoi(queryParams.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(queryParams.Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	subscriptionID, _ := strconv.ParseInt(queryParams.Get("subscription_id"), 10, 64)

	filters := models.NodeFilters{
		Page:           page,
		Limit:          limit,
		SortBy:         queryParams.Get("sort_by"),
		SortOrder:      queryParams.Get("sort_order"),
		SubscriptionID: subscriptionID,
		Protocol:       strings.TrimSpace(queryParams.Get("protocol")),
		SearchText:     strings.TrimSpace(queryParams.Get("search")),
	}

	nodes, totalRecords, err := database.GetNodesPaginated(filters)
	if err != nil {
		logger.Error("ListNodesHandler: Error fetching nodes: %v", err)
		http.Error(w, "Failed to retrieve nodes", http.StatusInternalServerError)
		return
	}

	response := models.PaginatedResponse{
		Page:         page,
		Limit:        limit,
		TotalRecords: int(totalRecords),
		TotalPages:   int((totalRecords + int64(limit) - 1) / int64(limit)),
		Records:      nodes,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("ListNodesHandler: Error encoding response: %v", err)
	}
}

// GetNodeHandler handles GET requests for a single node by ID.
func GetNodeHandler(w http.ResponseWriter, r *http.Request, nodeID int64) {
	node, err := database.GetNodeByID(nodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Node not found", http.StatusNotFound)
		} else {
			logger.Error("GetNodeHandler: Error fetching node %d: %v", nodeID, err)
			http.Error(w, "Failed to retrieve node", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(node)
}

// GetNodeYAMLHandler serves the node's full Clash proxies entry as YAML.
func GetNodeYAMLHandler(w http.ResponseWriter, r *http.Request, nodeID int64) {
	node, err := database.GetNodeByID(nodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Node not found", http.StatusNotFound)
		} else {
			logger.Error("GetNodeYAMLHandler: Error fetching node %d: %v", nodeID, err)
			http.Error(w, "Failed to retrieve node", http.StatusInternalServerError)
		}
		return
	}
	if strings.TrimSpace(node.RawConfig) == "" {
		http.Error(w, "Node has no stored configuration", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write([]byte(node.RawConfig))
}

// UpdateNodeHandler handles PUT requests to rename a node. The stored YAML
// fragment is rewritten alongside the row so GET /nodes/{id}/yaml keeps
// serving the new name.
// @Summary Rename a node
// @Description Updates the node's display name. Other fields derive from the imported share link and are read-only.
// @Tags Nodes
// @Accept json
// @Produce json
// @Param nodeID path int true "Node ID"
// @Param node body models.NodeUpdateRequest true "Fields to update"
// @Success 200 {object} models.Node
// @Failure 400 {string} string "Invalid payload"
// @Failure 404 {string} string "Node not found"
// @Failure 409 {object} models.ErrorResponse "Name already in use"
// @Router /nodes/{nodeID} [put]
func UpdateNodeHandler(w http.ResponseWriter, r *http.Request, nodeID int64) {
	var req models.NodeUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("UpdateNodeHandler: Error decoding request body for node %d: %v", nodeID, err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		http.Error(w, "Node name is required", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(*req.Name)

	node, err := database.GetNodeByID(nodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Node not found", http.StatusNotFound)
		} else {
			logger.Error("UpdateNodeHandler: Error fetching node %d: %v", nodeID, err)
			http.Error(w, "Failed to retrieve node", http.StatusInternalServerError)
		}
		return
	}

	rawConfig, err := core.RenameProxyEntry(node.RawConfig, name)
	if err != nil {
		logger.Error("UpdateNodeHandler: Error rewriting config for node %d: %v", nodeID, err)
		http.Error(w, "Failed to rewrite node configuration", http.StatusInternalServerError)
		return
	}

	updated, err := database.UpdateNodeName(nodeID, name, rawConfig)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "Node not found", http.StatusNotFound)
		case strings.Contains(err.Error(), "UNIQUE constraint failed"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Another node already uses that name on the same server and port."})
		default:
			logger.Error("UpdateNodeHandler: Error updating node %d: %v", nodeID, err)
			http.Error(w, "Failed to update node", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// DeleteNodeHandler handles DELETE requests to remove a node.
func DeleteNodeHandler(w http.ResponseWriter, r *http.Request, nodeID int64) {
	if err := database.DeleteNode(nodeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Node not found", http.StatusNotFound)
			return
		}
		logger.Error("DeleteNodeHandler: Error deleting node %d: %v", nodeID, err)
		http.Error(w, "Failed to delete node", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportNodesHandler handles POST requests to import nodes from share links.
// @Summary Import nodes from share links
// @Description Parses ss://, vmess:// and trojan:// links (one per line) and stores the resulting nodes. Duplicates of existing nodes are skipped.
// @Tags Nodes
// @Accept json
// @Produce json
// @Param links body models.NodeImportRequest true "Share links, one per line"
// @Success 200 {object} models.NodeImportResult
// @Failure 400 {string} string "Invalid request payload"
// @Router /nodes/import [post]
func ImportNodesHandler(w http.ResponseWriter, r *http.Request) {
	var req models.NodeImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("ImportNodesHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Links) == "" {
		http.Error(w, "No share links provided", http.StatusBadRequest)
		return
	}

	nodes, parseErrors := core.ParseShareLinks(req.Links)
	result := models.NodeImportResult{Errors: parseErrors}
	for _, node := range nodes {
		_, inserted, err := database.CreateNode(node)
		if err != nil {
			logger.Error("ImportNodesHandler: Error storing node '%s': %v", node.Name, err)
			result.Errors = append(result.Errors, "storing '"+node.Name+"': "+err.Error())
			continue
		}
		if inserted {
			result.Imported++
		} else {
			result.Skipped++
		}
	}
	logger.Info("Imported %d nodes (%d skipped, %d errors).", result.Imported, result.Skipped, len(result.Errors))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// CheckNodeHandler handles POST requests to probe one node's liveness now.
// @Summary Check a node
// @Description Runs a TCP liveness check against the node and stores the outcome.
// @Tags Nodes
// @Produce json
// @Param nodeID path int true "Node ID"
// @Success 200 {object} models.NodeCheckResult
// @Failure 404 {string} string "Node not found"
// @Router /nodes/{nodeID}/check [post]
func CheckNodeHandler(w http.ResponseWriter, r *http.Request, nodeID int64) {
	node, err := database.GetNodeByID(nodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Node not found", http.StatusNotFound)
		} else {
			logger.Error("CheckNodeHandler: Error fetching node %d: %v", nodeID, err)
			http.Error(w, "Failed to retrieve node", http.StatusInternalServerError)
		}
		return
	}

	result := nodeChecker.CheckAndStore(r.Context(), node)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// CheckAllNodesHandler handles POST requests to probe every stored node.
// @Summary Check all nodes
// @Description Runs a TCP liveness check against every stored node and returns the per-node results.
// @Tags Nodes
// @Produce json
// @Success 200 {array} models.NodeCheckResult
// @Failure 500 {string} string "Failed to list nodes"
// @Router /nodes/check-all [post]
func CheckAllNodesHandler(w http.ResponseWriter, r *http.Request) {
	results, err := nodeChecker.CheckAll(r.Context())
	if err != nil {
		logger.Error("CheckAllNodesHandler: Error checking nodes: %v", err)
		http.Error(w, "Failed to list nodes", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []models.NodeCheckResult{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
