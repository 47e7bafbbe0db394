package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/models"
)

// InsertTrafficSample stores one up/down reading from a probe's traffic stream.
func InsertTrafficSample(probeID, up, down int64) error {
	_, err := DB.Exec("INSERT INTO traffic_samples (probe_id, up, down) VALUES (?, ?, ?)", probeID, up, down)
	if err != nil {
		return fmt.Errorf("inserting traffic sample for probe %d: %w", probeID, err)
	}
	return nil
}

// GetTrafficSamples returns a probe's samples newer than since, oldest first.
func GetTrafficSamples(probeID int64, since time.Time, limit int) ([]models.TrafficSample, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := DB.Query(`
		SELECT id, probe_id, up, down, recorded_at
		FROM traffic_samples
		WHERE probe_id = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC, id ASC
		LIMIT ?
	`, probeID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying traffic samples for probe %d: %w", probeID, err)
	}
	defer rows.Close()

	var samples []models.TrafficSample
	for rows.Next() {
		var s models.TrafficSample
		if err := rows.Scan(&s.ID, &s.ProbeID, &s.Up, &s.Down, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning traffic sample row for probe %d: %w", probeID, err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// PruneTrafficSamples deletes samples older than the cutoff and reports how
// many rows went away.
func PruneTrafficSamples(olderThan time.Time) (int64, error) {
	result, err := DB.Exec("DELETE FROM traffic_samples WHERE recorded_at < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("pruning traffic samples: %w", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// InsertRelayTraffic stores one finished relay connection.
func InsertRelayTraffic(log models.RelayTrafficLog) error {
	_, err := DB.Exec(`
		INSERT INTO relay_traffic (protocol, client_addr, target_host, bytes_sent, bytes_received, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, log.Protocol, log.ClientAddr, log.TargetHost, log.BytesSent, log.BytesReceived, log.DurationMs, log.StartedAt)
	if err != nil {
		return fmt.Errorf("inserting relay traffic log: %w", err)
	}
	return nil
}

// GetRelayTrafficPaginated lists relay connections honoring the filter's
// paging, sorting and search parameters.
func GetRelayTrafficPaginated(filters models.RelayTrafficFilters) ([]models.RelayTrafficLog, int64, error) {
	var logs []models.RelayTrafficLog
	var totalRecords int64

	whereClauses := []string{}
	args := []any{}
	if filters.Protocol != "" {
		whereClauses = append(whereClauses, "protocol = ?")
		args = append(args, filters.Protocol)
	}
	if filters.HostSearch != "" {
		whereClauses = append(whereClauses, "target_host LIKE ?")
		args = append(args, "%"+filters.HostSearch+"%")
	}
	if filters.Since != "" {
		if since, err := time.Parse(time.RFC3339, filters.Since); err == nil {
			whereClauses = append(whereClauses, "started_at >= ?")
			args = append(args, since)
		}
	}
	where := ""
	if len(whereClauses) > 0 {
		where = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	err := DB.QueryRow("SELECT COUNT(*) FROM relay_traffic"+where, args...).Scan(&totalRecords)
	if err != nil {
		return nil, 0, fmt.Errorf("counting relay traffic logs: %w", err)
	}
	if totalRecords == 0 {
		return logs, 0, nil
	}

	allowedSortColumns := map[string]bool{"started_at": true, "bytes_sent": true, "bytes_received": true, "duration_ms": true, "id": true}
	sortBy := filters.SortBy
	if !allowedSortColumns[sortBy] {
		sortBy = "started_at"
	}
	sortOrder := strings.ToUpper(filters.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if filters.Page > 1 {
		offset = (filters.Page - 1) * limit
	}

	query := fmt.Sprintf(`
		SELECT id, protocol, client_addr, target_host, bytes_sent, bytes_received, duration_ms, started_at
		FROM relay_traffic%s
		ORDER BY %s %s, id %s
		LIMIT ? OFFSET ?
	`, where, sortBy, sortOrder, sortOrder)
	rows, err := DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, totalRecords, fmt.Errorf("querying relay traffic logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.RelayTrafficLog
		if err := rows.Scan(&l.ID, &l.Protocol, &l.ClientAddr, &l.TargetHost, &l.BytesSent, &l.BytesReceived, &l.DurationMs, &l.StartedAt); err != nil {
			return nil, totalRecords, fmt.Errorf("scanning relay traffic row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, totalRecords, rows.Err()
}

// GetRelayTrafficSummary aggregates relay usage across all recorded connections.
func GetRelayTrafficSummary() (models.RelayTrafficSummary, error) {
	var s models.RelayTrafficSummary
	err := DB.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(bytes_sent), 0), COALESCE(SUM(bytes_received), 0)
		FROM relay_traffic
	`).Scan(&s.Connections, &s.BytesSent, &s.BytesReceived)
	if err != nil {
		return s, fmt.Errorf("summarizing relay traffic: %w", err)
	}
	return s, nil
}
