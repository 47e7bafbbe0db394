package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/models"
)

// CreateSubscription registers a new upstream.
func CreateSubscription(req models.SubscriptionCreateRequest) (models.Subscription, error) {
	var sub models.Subscription
	sub.Name = strings.TrimSpace(req.Name)
	sub.URL = strings.TrimSpace(req.URL)
	if sub.Name == "" {
		return sub, errors.New("subscription name is required")
	}
	if sub.URL == "" {
		return sub, errors.New("subscription url is required")
	}
	sub.Enabled = true
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}
	sub.FetchIntervalMinutes = req.FetchIntervalMinutes
	if sub.FetchIntervalMinutes == 0 {
		sub.FetchIntervalMinutes = 360
	}

	stmt, err := DB.Prepare("INSERT INTO subscriptions (name, url, enabled, fetch_interval_minutes) VALUES (?, ?, ?, ?)")
	if err != nil {
		return sub, fmt.Errorf("preparing insert subscription statement: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(sub.Name, sub.URL, sub.Enabled, sub.FetchIntervalMinutes)
	if err != nil {
		return sub, fmt.Errorf("executing insert subscription statement for name '%s': %w", sub.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return sub, fmt.Errorf("getting last insert ID for subscription '%s': %w", sub.Name, err)
	}
	sub.ID = id
	return sub, nil
}

func scanSubscription(scanner interface{ Scan(...any) error }) (models.Subscription, error) {
	var sub models.Subscription
	var lastSync, expireAt sql.NullTime
	err := scanner.Scan(
		&sub.ID, &sub.Name, &sub.URL, &sub.Enabled, &sub.FetchIntervalMinutes,
		&lastSync, &sub.LastStatus, &sub.LastError, &sub.NodeCount,
		&sub.Upload, &sub.Download, &sub.Total, &expireAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return sub, err
	}
	sub.LastSyncAt = models.TimePtr(lastSync)
	sub.ExpireAt = models.TimePtr(expireAt)
	return sub, nil
}

const subscriptionColumns = `id, name, url, enabled, fetch_interval_minutes,
	last_sync_at, last_status, last_error, node_count,
	upload, download, total, expire_at, created_at, updated_at`

// GetSubscriptionByID retrieves a single subscription by its ID.
func GetSubscriptionByID(subscriptionID int64) (models.Subscription, error) {
	row := DB.QueryRow("SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?", subscriptionID)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sub, fmt.Errorf("subscription with ID %d not found: %w", subscriptionID, err)
		}
		return sub, fmt.Errorf("querying subscription ID %d: %w", subscriptionID, err)
	}
	return sub, nil
}

// GetSubscriptionsPaginated lists subscriptions honoring the filter's paging,
// sorting and search parameters.
func GetSubscriptionsPaginated(filters models.SubscriptionFilters) ([]models.Subscription, int64, error) {
	var subs []models.Subscription
	var totalRecords int64

	whereClauses := []string{}
	args := []any{}
	if filters.EnabledOnly {
		whereClauses = append(whereClauses, "enabled = 1")
	}
	if filters.SearchText != "" {
		whereClauses = append(whereClauses, "(name LIKE ? OR url LIKE ?)")
		like := "%" + filters.SearchText + "%"
		args = append(args, like, like)
	}
	where := ""
	if len(whereClauses) > 0 {
		where = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	err := DB.QueryRow("SELECT COUNT(*) FROM subscriptions"+where, args...).Scan(&totalRecords)
	if err != nil {
		return nil, 0, fmt.Errorf("counting subscriptions: %w", err)
	}
	if totalRecords == 0 {
		return subs, 0, nil
	}

	allowedSortColumns := map[string]bool{"name": true, "last_sync_at": true, "node_count": true, "created_at": true, "id": true}
	sortBy := filters.SortBy
	if !allowedSortColumns[sortBy] {
		sortBy = "name"
	}
	sortOrder := strings.ToUpper(filters.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if filters.Page > 1 {
		offset = (filters.Page - 1) * limit
	}

	query := fmt.Sprintf("SELECT "+subscriptionColumns+" FROM subscriptions%s ORDER BY %s %s, id %s LIMIT ? OFFSET ?", where, sortBy, sortOrder, sortOrder)
	rows, err := DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, totalRecords, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, totalRecords, fmt.Errorf("scanning subscription row: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, totalRecords, rows.Err()
}

// UpdateSubscription applies the non-nil fields of the update request.
func UpdateSubscription(subscriptionID int64, req models.SubscriptionUpdateRequest) (models.Subscription, error) {
	setClauses := []string{}
	args := []any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return models.Subscription{}, errors.New("subscription name is required for update")
		}
		setClauses = append(setClauses, "name = ?")
		args = append(args, name)
	}
	if req.URL != nil {
		url := strings.TrimSpace(*req.URL)
		if url == "" {
			return models.Subscription{}, errors.New("subscription url is required for update")
		}
		setClauses = append(setClauses, "url = ?")
		args = append(args, url)
	}
	if req.Enabled != nil {
		setClauses = append(setClauses, "enabled = ?")
		args = append(args, *req.Enabled)
	}
	if req.FetchIntervalMinutes != nil {
		setClauses = append(setClauses, "fetch_interval_minutes = ?")
		args = append(args, *req.FetchIntervalMinutes)
	}
	if len(setClauses) == 0 {
		return GetSubscriptionByID(subscriptionID)
	}
	setClauses = append(setClauses, "updated_at = CURRENT_TIMESTAMP")

	query := fmt.Sprintf("UPDATE subscriptions SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	result, err := DB.Exec(query, append(args, subscriptionID)...)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("executing update subscription statement for ID %d: %w", subscriptionID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return models.Subscription{}, fmt.Errorf("subscription with ID %d not found: %w", subscriptionID, sql.ErrNoRows)
	}
	return GetSubscriptionByID(subscriptionID)
}

// DeleteSubscription deletes a subscription by its ID. Nodes imported from it
// go with it via the foreign key; stored documents are kept but unlinked.
func DeleteSubscription(subscriptionID int64) error {
	stmt, err := DB.Prepare("DELETE FROM subscriptions WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing delete subscription statement for ID %d: %w", subscriptionID, err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(subscriptionID)
	if err != nil {
		return fmt.Errorf("executing delete subscription statement for ID %d: %w", subscriptionID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("subscription with ID %d not found: %w", subscriptionID, sql.ErrNoRows)
	}
	return nil
}

// ListDueSubscriptions returns the enabled subscriptions whose next scheduled
// sync time has passed. A fetch interval of 0 opts the entry out.
func ListDueSubscriptions(now time.Time) ([]models.Subscription, error) {
	rows, err := DB.Query("SELECT " + subscriptionColumns + " FROM subscriptions WHERE enabled = 1 AND fetch_interval_minutes > 0")
	if err != nil {
		return nil, fmt.Errorf("querying due subscriptions: %w", err)
	}
	defer rows.Close()

	var due []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning due subscription row: %w", err)
		}
		if sub.LastSyncAt == nil || now.Sub(*sub.LastSyncAt) >= time.Duration(sub.FetchIntervalMinutes)*time.Minute {
			due = append(due, sub)
		}
	}
	return due, rows.Err()
}

// UpdateSubscriptionSyncState records the outcome of one sync pass, including
// the traffic counters parsed from the subscription-userinfo header.
func UpdateSubscriptionSyncState(subscriptionID int64, status, lastError string, nodeCount int, upload, download, total int64, expireAt *time.Time) error {
	stmt, err := DB.Prepare(`
		UPDATE subscriptions
		SET last_sync_at = CURRENT_TIMESTAMP, last_status = ?, last_error = ?, node_count = ?,
		    upload = ?, download = ?, total = ?, expire_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing sync state statement for subscription %d: %w", subscriptionID, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(status, lastError, nodeCount, upload, download, total, models.NullTime(expireAt), subscriptionID)
	if err != nil {
		return fmt.Errorf("executing sync state statement for subscription %d: %w", subscriptionID, err)
	}
	return nil
}
