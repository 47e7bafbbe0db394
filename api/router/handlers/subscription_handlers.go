package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

// validateSubscriptionURL rejects anything the fetcher would refuse anyway,
// so broken entries never reach the scheduler.
func validateSubscriptionURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("subscription URL must use http or https")
	}
	if parsed.Host == "" {
		return errors.New("subscription URL is missing a host")
	}
	return nil
}

// ListSubscriptionsHandler handles GET requests to list subscriptions with pagination.
// @Summary List subscriptions
// @Description Retrieves subscriptions with pagination, sorting and search.
// @Tags Subscriptions
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Records per page (default 50, max 200)"
// @Param sort_by query string false "Sort key: name, last_sync_at, node_count, created_at, id"
// @Param sort_order query string false "ASC or DESC"
// @Param enabled_only query bool false "Only return enabled subscriptions"
// @Param search query string false "Substring match on name or URL"
// @Success 200 {object} models.PaginatedResponse
// @Failure 500 {string} string "Failed to retrieve subscriptions"
// @Router /subscriptions [get]
func ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	queryParams := r.URL.Query()

	page, _ := strconv.Atoi(queryParams.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(queryParams.Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	filters := models.SubscriptionFilters{
		Page:        page,
		Limit:       limit,
		SortBy:      queryParams.Get("sort_by"),
		SortOrder:   queryParams.Get("sort_order"),
		EnabledOnly: queryParams.Get("enabled_only") == "true",
		SearchText:  strings.TrimSpace(queryParams.Get("search")),
	}

	subs, totalRecords, err := database.GetSubscriptionsPaginated(filters)
	if err != nil {
		logger.Error("ListSubscriptionsHandler: Error fetching subscriptions: %v", err)
		http.Error(w, "Failed to retrieve subscriptions", http.StatusInternalServerError)
		return
	}

	response := models.PaginatedResponse{
		Page:         page,
		Limit:        limit,
		TotalRecords: int(totalRecords),
		TotalPages:   int((totalRecords + int64(limit) - 1) / int64(limit)),
		Records:      subs,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("ListSubscriptionsHandler: Error encoding response: %v", err)
	}
}

// CreateSubscriptionHandler handles POST requests to register a subscription.
// @Summary Register a subscription
// @Description Registers an upstream subscription URL. Syncing is scheduled separately.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param subscription body models.SubscriptionCreateRequest true "Subscription to register"
// @Success 201 {object} models.Subscription
// @Failure 400 {object} models.ErrorResponse "Invalid payload or URL"
// @Failure 409 {object} models.ErrorResponse "Name already in use"
// @Router /subscriptions [post]
func CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SubscriptionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("CreateSubscriptionHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.URL) == "" {
		http.Error(w, "Subscription name and URL are required", http.StatusBadRequest)
		return
	}
	if err := validateSubscriptionURL(req.URL); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Invalid subscription URL: " + err.Error()})
		return
	}

	sub, err := database.CreateSubscription(req)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ErrorResponse{Message: "A subscription named '" + strings.TrimSpace(req.Name) + "' already exists."})
			return
		}
		logger.Error("CreateSubscriptionHandler: Error creating subscription: %v", err)
		http.Error(w, "Failed to create subscription", http.StatusInternalServerError)
		return
	}
	logger.Info("Registered subscription '%s' (ID %d).", sub.Name, sub.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sub)
}

// GetSubscriptionHandler handles GET requests for a single subscription by ID.
func GetSubscriptionHandler(w http.ResponseWriter, r *http.Request, subscriptionID int64) {
	sub, err := database.GetSubscriptionByID(subscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
		} else {
			logger.Error("GetSubscriptionHandler: Error fetching subscription %d: %v", subscriptionID, err)
			http.Error(w, "Failed to retrieve subscription", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

// UpdateSubscriptionHandler handles PUT requests to update subscription fields.
// @Summary Update a subscription
// @Description Applies the non-null fields of the payload to the subscription.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param subscriptionID path int true "Subscription ID"
// @Param subscription body models.SubscriptionUpdateRequest true "Fields to update"
// @Success 200 {object} models.Subscription
// @Failure 400 {object} models.ErrorResponse "Invalid payload or URL"
// @Failure 404 {string} string "Subscription not found"
// @Failure 409 {object} models.ErrorResponse "Name already in use"
// @Router /subscriptions/{subscriptionID} [put]
func UpdateSubscriptionHandler(w http.ResponseWriter, r *http.Request, subscriptionID int64) {
	var req models.SubscriptionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("UpdateSubscriptionHandler: Error decoding request body for subscription %d: %v", subscriptionID, err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.URL != nil {
		if err := validateSubscriptionURL(*req.URL); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Invalid subscription URL: " + err.Error()})
			return
		}
	}

	sub, err := database.UpdateSubscription(subscriptionID, req)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "Subscription not found", http.StatusNotFound)
		case strings.Contains(err.Error(), "UNIQUE constraint failed"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Another subscription already uses that name."})
		default:
			logger.Error("UpdateSubscriptionHandler: Error updating subscription %d: %v", subscriptionID, err)
			http.Error(w, "Failed to update subscription", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

// DeleteSubscriptionHandler handles DELETE requests to remove a subscription
// and the nodes imported from it.
func DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request, subscriptionID int64) {
	if err := database.DeleteSubscription(subscriptionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		logger.Error("DeleteSubscriptionHandler: Error deleting subscription %d: %v", subscriptionID, err)
		http.Error(w, "Failed to delete subscription", http.StatusInternalServerError)
		return
	}
	logger.Info("Deleted subscription %d.", subscriptionID)
	w.WriteHeader(http.StatusNoContent)
}

// SyncSubscriptionHandler handles POST requests to sync one subscription now.
// @Summary Sync a subscription
// @Description Fetches the upstream immediately and imports its nodes. The result is returned even when the fetch fails; check the error field.
// @Tags Subscriptions
// @Produce json
// @Param subscriptionID path int true "Subscription ID"
// @Success 200 {object} models.SyncResult
// @Failure 404 {string} string "Subscription not found"
// @Router /subscriptions/{subscriptionID}/sync [post]
func SyncSubscriptionHandler(w http.ResponseWriter, r *http.Request, subscriptionID int64) {
	sub, err := database.GetSubscriptionByID(subscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
		} else {
			logger.Error("SyncSubscriptionHandler: Error fetching subscription %d: %v", subscriptionID, err)
			http.Error(w, "Failed to retrieve subscription", http.StatusInternalServerError)
		}
		return
	}

	result := syncManager.SyncSubscription(r.Context(), sub)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// SyncAllSubscriptionsHandler handles POST requests to sync every enabled subscription.
// @Summary Sync all subscriptions
// @Description Fetches every enabled subscription sequentially and returns the per-subscription results.
// @Tags Subscriptions
// @Produce json
// @Success 200 {array} models.SyncResult
// @Failure 500 {string} string "Failed to list subscriptions"
// @Router /subscriptions/sync-all [post]
func SyncAllSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	results, err := syncManager.SyncAll(r.Context())
	if err != nil {
		logger.Error("SyncAllSubscriptionsHandler: Error syncing subscriptions: %v", err)
		http.Error(w, "Failed to list subscriptions", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []models.SyncResult{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// PreviewSubscriptionHandler handles GET requests to inspect an upstream
// without importing anything.
// @Summary Preview a subscription
// @Description Fetches the upstream and reports what a sync would import, without writing to storage.
// @Tags Subscriptions
// @Produce json
// @Param subscriptionID path int true "Subscription ID"
// @Success 200 {object} models.SubscriptionPreview
// @Failure 404 {string} string "Subscription not found"
// @Failure 502 {object} models.ErrorResponse "Upstream fetch failed"
// @Router /subscriptions/{subscriptionID}/preview [get]
func PreviewSubscriptionHandler(w http.ResponseWriter, r *http.Request, subscriptionID int64) {
	sub, err := database.GetSubscriptionByID(subscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
		} else {
			logger.Error("PreviewSubscriptionHandler: Error fetching subscription %d: %v", subscriptionID, err)
			http.Error(w, "Failed to retrieve subscription", http.StatusInternalServerError)
		}
		return
	}

	preview, err := syncManager.Preview(r.Context(), sub)
	if err != nil {
		logger.Error("PreviewSubscriptionHandler: Fetch failed for subscription %d (%s): %v", subscriptionID, sub.Name, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(models.ErrorResponse{Message: "Upstream fetch failed: " + err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preview)
}
