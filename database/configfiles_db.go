package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/models"
)

// ErrStaleRevision is returned when a guarded content update names a revision
// that is no longer current, meaning another writer saved first.
var ErrStaleRevision = errors.New("config file revision is stale")

// CreateConfigFile inserts a new stored document.
func CreateConfigFile(name, content string, subscriptionID *int64) (models.ConfigFile, error) {
	var cf models.ConfigFile
	cf.Name = strings.TrimSpace(name)
	if cf.Name == "" {
		return cf, errors.New("config file name is required")
	}
	cf.Content = content
	cf.SubscriptionID = subscriptionID

	stmt, err := DB.Prepare("INSERT INTO config_files (name, content, subscription_id) VALUES (?, ?, ?)")
	if err != nil {
		return cf, fmt.Errorf("preparing insert config file statement: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(cf.Name, cf.Content, models.NullInt64(subscriptionID))
	if err != nil {
		return cf, fmt.Errorf("executing insert config file statement for name '%s': %w", cf.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return cf, fmt.Errorf("getting last insert ID for config file '%s': %w", cf.Name, err)
	}
	cf.ID = id
	cf.Revision = 1
	return cf, nil
}

// GetConfigFileByID retrieves a single stored document, content included.
func GetConfigFileByID(configFileID int64) (models.ConfigFile, error) {
	var cf models.ConfigFile
	var subID sql.NullInt64
	query := `SELECT id, name, content, revision, subscription_id, created_at, updated_at FROM config_files WHERE id = ?`
	err := DB.QueryRow(query, configFileID).Scan(&cf.ID, &cf.Name, &cf.Content, &cf.Revision, &subID, &cf.CreatedAt, &cf.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cf, fmt.Errorf("config file with ID %d not found: %w", configFileID, err)
		}
		return cf, fmt.Errorf("querying config file ID %d: %w", configFileID, err)
	}
	cf.SubscriptionID = models.Int64Ptr(subID)
	return cf, nil
}

// GetConfigFileByName retrieves a stored document by its unique name.
func GetConfigFileByName(name string) (models.ConfigFile, error) {
	var cf models.ConfigFile
	var subID sql.NullInt64
	query := `SELECT id, name, content, revision, subscription_id, created_at, updated_at FROM config_files WHERE name = ?`
	err := DB.QueryRow(query, name).Scan(&cf.ID, &cf.Name, &cf.Content, &cf.Revision, &subID, &cf.CreatedAt, &cf.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cf, fmt.Errorf("config file with name '%s' not found: %w", name, err)
		}
		return cf, fmt.Errorf("querying config file name '%s': %w", name, err)
	}
	cf.SubscriptionID = models.Int64Ptr(subID)
	return cf, nil
}

// GetAllConfigFiles retrieves every stored document, content included, ordered
// by name. The list endpoint parses each content to build its summaries.
func GetAllConfigFiles() ([]models.ConfigFile, error) {
	rows, err := DB.Query(`SELECT id, name, content, revision, subscription_id, created_at, updated_at FROM config_files ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying all config files: %w", err)
	}
	defer rows.Close()

	var files []models.ConfigFile
	for rows.Next() {
		var cf models.ConfigFile
		var subID sql.NullInt64
		if err := rows.Scan(&cf.ID, &cf.Name, &cf.Content, &cf.Revision, &subID, &cf.CreatedAt, &cf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning config file row: %w", err)
		}
		cf.SubscriptionID = models.Int64Ptr(subID)
		files = append(files, cf)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config file rows: %w", err)
	}
	return files, nil
}

// UpdateConfigFileContent replaces a document's content if expectedRevision is
// still current, returning the new revision. A concurrent save surfaces as
// ErrStaleRevision so the caller can refuse with a conflict.
func UpdateConfigFileContent(configFileID int64, content string, expectedRevision int64) (int64, error) {
	stmt, err := DB.Prepare(`
		UPDATE config_files
		SET content = ?, revision = revision + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND revision = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing update config file statement for ID %d: %w", configFileID, err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(content, configFileID, expectedRevision)
	if err != nil {
		return 0, fmt.Errorf("executing update config file statement for ID %d: %w", configFileID, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		// Either the row is gone or someone else bumped the revision.
		var current int64
		err := DB.QueryRow("SELECT revision FROM config_files WHERE id = ?", configFileID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("config file with ID %d not found: %w", configFileID, sql.ErrNoRows)
		}
		if err != nil {
			return 0, fmt.Errorf("checking revision for config file ID %d: %w", configFileID, err)
		}
		return current, fmt.Errorf("config file ID %d at revision %d, expected %d: %w", configFileID, current, expectedRevision, ErrStaleRevision)
	}
	return expectedRevision + 1, nil
}

// OverwriteConfigFileContent replaces a document's content unconditionally and
// returns the new revision. Used by forced saves and subscription sync.
func OverwriteConfigFileContent(configFileID int64, content string) (int64, error) {
	stmt, err := DB.Prepare(`
		UPDATE config_files
		SET content = ?, revision = revision + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing overwrite config file statement for ID %d: %w", configFileID, err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(content, configFileID)
	if err != nil {
		return 0, fmt.Errorf("executing overwrite config file statement for ID %d: %w", configFileID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return 0, fmt.Errorf("config file with ID %d not found: %w", configFileID, sql.ErrNoRows)
	}

	var revision int64
	if err := DB.QueryRow("SELECT revision FROM config_files WHERE id = ?", configFileID).Scan(&revision); err != nil {
		return 0, fmt.Errorf("reading revision after overwrite for config file ID %d: %w", configFileID, err)
	}
	return revision, nil
}

// RenameConfigFile changes a document's display name.
func RenameConfigFile(configFileID int64, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return errors.New("config file name is required")
	}

	stmt, err := DB.Prepare("UPDATE config_files SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing rename config file statement for ID %d: %w", configFileID, err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(newName, configFileID)
	if err != nil {
		return fmt.Errorf("executing rename config file statement for ID %d: %w", configFileID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("config file with ID %d not found: %w", configFileID, sql.ErrNoRows)
	}
	return nil
}

// DeleteConfigFile deletes a stored document by its ID.
func DeleteConfigFile(configFileID int64) error {
	stmt, err := DB.Prepare("DELETE FROM config_files WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing delete config file statement for ID %d: %w", configFileID, err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(configFileID)
	if err != nil {
		return fmt.Errorf("executing delete config file statement for ID %d: %w", configFileID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("config file with ID %d not found: %w", configFileID, sql.ErrNoRows)
	}
	return nil
}

// UpsertSubscriptionDocument stores the full document fetched from a
// subscription under the given name, creating it on first sync and bumping
// the revision on every later one.
func UpsertSubscriptionDocument(subscriptionID int64, name, content string) (models.ConfigFile, error) {
	existing, err := GetConfigFileByName(name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CreateConfigFile(name, content, &subscriptionID)
		}
		return models.ConfigFile{}, err
	}

	if _, err := OverwriteConfigFileContent(existing.ID, content); err != nil {
		return models.ConfigFile{}, err
	}
	return GetConfigFileByID(existing.ID)
}
