package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/models"
)

// ExportBackup collects every configuration table into one payload. Traffic
// samples and relay logs stay behind.
func ExportBackup() (models.BackupPayload, error) {
	payload := models.BackupPayload{ExportedAt: time.Now().UTC()}

	userRows, err := DB.Query("SELECT id, username, password_hash, created_at, updated_at FROM users ORDER BY id")
	if err != nil {
		return payload, fmt.Errorf("querying users for backup: %w", err)
	}
	for userRows.Next() {
		var u models.BackupUser
		if err := userRows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			userRows.Close()
			return payload, fmt.Errorf("scanning user row for backup: %w", err)
		}
		payload.Users = append(payload.Users, u)
	}
	userRows.Close()

	settingRows, err := DB.Query("SELECT key, value FROM app_settings ORDER BY key")
	if err != nil {
		return payload, fmt.Errorf("querying settings for backup: %w", err)
	}
	for settingRows.Next() {
		var e models.BackupEntry
		if err := settingRows.Scan(&e.Key, &e.Value); err != nil {
			settingRows.Close()
			return payload, fmt.Errorf("scanning setting row for backup: %w", err)
		}
		payload.Settings = append(payload.Settings, e)
	}
	settingRows.Close()

	subRows, err := DB.Query("SELECT " + subscriptionColumns + " FROM subscriptions ORDER BY id")
	if err != nil {
		return payload, fmt.Errorf("querying subscriptions for backup: %w", err)
	}
	for subRows.Next() {
		sub, err := scanSubscription(subRows)
		if err != nil {
			subRows.Close()
			return payload, fmt.Errorf("scanning subscription row for backup: %w", err)
		}
		payload.Subscriptions = append(payload.Subscriptions, sub)
	}
	subRows.Close()

	files, err := GetAllConfigFiles()
	if err != nil {
		return payload, fmt.Errorf("collecting config files for backup: %w", err)
	}
	payload.ConfigFiles = files

	nodes, err := GetAllNodes()
	if err != nil {
		return payload, fmt.Errorf("collecting nodes for backup: %w", err)
	}
	payload.Nodes = nodes

	probes, err := GetAllProbes()
	if err != nil {
		return payload, fmt.Errorf("collecting probes for backup: %w", err)
	}
	payload.Probes = probes

	return payload, nil
}

// ImportBackup replaces the panel's configuration with the payload's contents
// in one transaction. Existing rows in the covered tables are dropped first;
// IDs are restored verbatim so cross-table references survive.
func ImportBackup(payload models.BackupPayload) (models.BackupImportResult, error) {
	var result models.BackupImportResult

	tx, err := DB.Begin()
	if err != nil {
		return result, fmt.Errorf("starting backup import transaction: %w", err)
	}
	defer tx.Rollback()

	// Children before parents, so the foreign keys never dangle mid-import.
	clearStatements := []string{
		"DELETE FROM nodes",
		"DELETE FROM config_files",
		"DELETE FROM subscriptions",
		"DELETE FROM probes",
		"DELETE FROM users",
		"DELETE FROM app_settings",
	}
	for _, stmt := range clearStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return result, fmt.Errorf("clearing table for backup import (%s): %w", stmt, err)
		}
	}

	for _, u := range payload.Users {
		if _, err := tx.Exec(
			"INSERT INTO users (id, username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			u.ID, u.Username, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
		); err != nil {
			return result, fmt.Errorf("restoring user '%s': %w", u.Username, err)
		}
		result.Users++
	}

	for _, e := range payload.Settings {
		if _, err := tx.Exec("INSERT INTO app_settings (key, value) VALUES (?, ?)", e.Key, e.Value); err != nil {
			return result, fmt.Errorf("restoring setting '%s': %w", e.Key, err)
		}
		result.Settings++
	}

	for _, sub := range payload.Subscriptions {
		if _, err := tx.Exec(`
			INSERT INTO subscriptions (id, name, url, enabled, fetch_interval_minutes,
				last_sync_at, last_status, last_error, node_count,
				upload, download, total, expire_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sub.ID, sub.Name, sub.URL, sub.Enabled, sub.FetchIntervalMinutes,
			models.NullTime(sub.LastSyncAt), sub.LastStatus, sub.LastError, sub.NodeCount,
			sub.Upload, sub.Download, sub.Total, models.NullTime(sub.ExpireAt), sub.CreatedAt, sub.UpdatedAt,
		); err != nil {
			return result, fmt.Errorf("restoring subscription '%s': %w", sub.Name, err)
		}
		result.Subscriptions++
	}

	for _, cf := range payload.ConfigFiles {
		if _, err := tx.Exec(`
			INSERT INTO config_files (id, name, content, revision, subscription_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, cf.ID, cf.Name, cf.Content, cf.Revision, models.NullInt64(cf.SubscriptionID), cf.CreatedAt, cf.UpdatedAt,
		); err != nil {
			return result, fmt.Errorf("restoring config file '%s': %w", cf.Name, err)
		}
		result.ConfigFiles++
	}

	for _, n := range payload.Nodes {
		alive := sql.NullBool{}
		if n.Alive != nil {
			alive = sql.NullBool{Bool: *n.Alive, Valid: true}
		}
		if _, err := tx.Exec(`
			INSERT INTO nodes (id, subscription_id, name, protocol, server, port, raw_config,
				alive, latency_ms, last_checked_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, n.ID, models.NullInt64(n.SubscriptionID), n.Name, n.Protocol, n.Server, n.Port, n.RawConfig,
			alive, models.NullInt64(n.LatencyMs), models.NullTime(n.LastCheckedAt), n.CreatedAt, n.UpdatedAt,
		); err != nil {
			return result, fmt.Errorf("restoring node '%s': %w", n.Name, err)
		}
		result.Nodes++
	}

	for _, p := range payload.Probes {
		if _, err := tx.Exec(`
			INSERT INTO probes (id, name, base_url, secret, enabled, last_seen_at, last_version, last_error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Name, p.BaseURL, p.Secret, p.Enabled, models.NullTime(p.LastSeenAt), p.LastVersion, p.LastError, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return result, fmt.Errorf("restoring probe '%s': %w", p.Name, err)
		}
		result.Probes++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("committing backup import transaction: %w", err)
	}
	return result, nil
}
