package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/models"
)

const nodeColumns = `id, subscription_id, name, protocol, server, port, raw_config,
	alive, latency_ms, last_checked_at, created_at, updated_at`

func scanNode(scanner interface{ Scan(...any) error }) (models.Node, error) {
	var n models.Node
	var subID sql.NullInt64
	var alive sql.NullBool
	var latency sql.NullInt64
	var checkedAt sql.NullTime
	err := scanner.Scan(
		&n.ID, &subID, &n.Name, &n.Protocol, &n.Server, &n.Port, &n.RawConfig,
		&alive, &latency, &checkedAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return n, err
	}
	n.SubscriptionID = models.Int64Ptr(subID)
	if alive.Valid {
		v := alive.Bool
		n.Alive = &v
	}
	n.LatencyMs = models.Int64Ptr(latency)
	n.LastCheckedAt = models.TimePtr(checkedAt)
	return n, nil
}

// CreateNode inserts a node, skipping it when an identical (name, server,
// port) row already exists. The second return reports whether a row was
// actually inserted.
func CreateNode(node models.Node) (int64, bool, error) {
	if strings.TrimSpace(node.Name) == "" {
		return 0, false, errors.New("node name is required")
	}
	if strings.TrimSpace(node.Server) == "" {
		return 0, false, errors.New("node server is required")
	}

	stmt, err := DB.Prepare(`
		INSERT OR IGNORE INTO nodes (subscription_id, name, protocol, server, port, raw_config)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, false, fmt.Errorf("preparing insert node statement: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(models.NullInt64(node.SubscriptionID), node.Name, node.Protocol, node.Server, node.Port, node.RawConfig)
	if err != nil {
		return 0, false, fmt.Errorf("executing insert node statement for '%s': %w", node.Name, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("getting rows affected for node '%s': %w", node.Name, err)
	}
	if rowsAffected == 0 {
		return 0, false, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, true, fmt.Errorf("getting last insert ID for node '%s': %w", node.Name, err)
	}
	return id, true, nil
}

// GetNodeByID retrieves a single node by its ID.
func GetNodeByID(nodeID int64) (models.Node, error) {
	row := DB.QueryRow("SELECT "+nodeColumns+" FROM nodes WHERE id = ?", nodeID)
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return n, fmt.Errorf("node with ID %d not found: %w", nodeID, err)
		}
		return n, fmt.Errorf("querying node ID %d: %w", nodeID, err)
	}
	return n, nil
}

// UpdateNodeName renames a node, writing the name and the rewritten YAML
// fragment together so the two never disagree.
func UpdateNodeName(nodeID int64, name, rawConfig string) (models.Node, error) {
	result, err := DB.Exec(`
		UPDATE nodes SET name = ?, raw_config = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, name, rawConfig, nodeID)
	if err != nil {
		return models.Node{}, fmt.Errorf("executing update node statement for ID %d: %w", nodeID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return models.Node{}, fmt.Errorf("node with ID %d not found: %w", nodeID, sql.ErrNoRows)
	}
	return GetNodeByID(nodeID)
}

// GetNodesPaginated lists nodes honoring the filter's paging, sorting and
// search parameters.
func GetNodesPaginated(filters models.NodeFilters) ([]models.Node, int64, error) {
	var nodes []models.Node
	var totalRecords int64

	whereClauses := []string{}
	args := []any{}
	if filters.SubscriptionID > 0 {
		whereClauses = append(whereClauses, "subscription_id = ?")
		args = append(args, filters.SubscriptionID)
	}
	if filters.Protocol != "" {
		whereClauses = append(whereClauses, "protocol = ?")
		args = append(args, filters.Protocol)
	}
	if filters.SearchText != "" {
		whereClauses = append(whereClauses, "(name LIKE ? OR server LIKE ?)")
		like := "%" + filters.SearchText + "%"
		args = append(args, like, like)
	}
	where := ""
	if len(whereClauses) > 0 {
		where = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	err := DB.QueryRow("SELECT COUNT(*) FROM nodes"+where, args...).Scan(&totalRecords)
	if err != nil {
		return nil, 0, fmt.Errorf("counting nodes: %w", err)
	}
	if totalRecords == 0 {
		return nodes, 0, nil
	}

	allowedSortColumns := map[string]bool{"name": true, "protocol": true, "server": true, "latency_ms": true, "last_checked_at": true, "id": true}
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
		limit = 100
	}
	offset := 0
	if filters.Page > 1 {
		offset = (filters.Page - 1) * limit
	}

	query := fmt.Sprintf("SELECT "+nodeColumns+" FROM nodes%s ORDER BY %s %s, id %s LIMIT ? OFFSET ?", where, sortBy, sortOrder, sortOrder)
	rows, err := DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, totalRecords, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, totalRecords, fmt.Errorf("scanning node row: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, totalRecords, rows.Err()
}

// GetAllNodes returns every node, used by the bulk liveness check.
func GetAllNodes() ([]models.Node, error) {
	rows, err := DB.Query("SELECT " + nodeColumns + " FROM nodes ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying all nodes: %w", err)
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node row: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ReplaceSubscriptionNodes swaps a subscription's node set for the freshly
// fetched one in a single transaction.
func ReplaceSubscriptionNodes(subscriptionID int64, nodes []models.Node) (int, error) {
	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning node replace transaction for subscription %d: %w", subscriptionID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM nodes WHERE subscription_id = ?", subscriptionID); err != nil {
		return 0, fmt.Errorf("clearing nodes for subscription %d: %w", subscriptionID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO nodes (subscription_id, name, protocol, server, port, raw_config)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing node replace statement for subscription %d: %w", subscriptionID, err)
	}
	defer stmt.Close()

	inserted := 0
	for _, n := range nodes {
		result, err := stmt.Exec(subscriptionID, n.Name, n.Protocol, n.Server, n.Port, n.RawConfig)
		if err != nil {
			return 0, fmt.Errorf("inserting node '%s' for subscription %d: %w", n.Name, subscriptionID, err)
		}
		if rowsAffected, _ := result.RowsAffected(); rowsAffected > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing node replace for subscription %d: %w", subscriptionID, err)
	}
	return inserted, nil
}

// UpdateNodeCheckResult stores the outcome of a liveness check.
func UpdateNodeCheckResult(nodeID int64, alive bool, latencyMs int64, checkedAt time.Time) error {
	var latency sql.NullInt64
	if alive {
		latency = sql.NullInt64{Int64: latencyMs, Valid: true}
	}
	stmt, err := DB.Prepare(`
		UPDATE nodes
		SET alive = ?, latency_ms = ?, last_checked_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing node check statement for ID %d: %w", nodeID, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(alive, latency, checkedAt, nodeID)
	if err != nil {
		return fmt.Errorf("executing node check statement for ID %d: %w", nodeID, err)
	}
	return nil
}

// DeleteNode deletes a node by its ID.
func DeleteNode(nodeID int64) error {
	stmt, err := DB.Prepare("DELETE FROM nodes WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing delete node statement for ID %d: %w", nodeID, err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(nodeID)
	if err != nil {
		return fmt.Errorf("executing delete node statement for ID %d: %w", nodeID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("node with ID %d not found: %w", nodeID, sql.ErrNoRows)
	}
	return nil
}
