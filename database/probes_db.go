package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/models"
)

const probeColumns = `id, name, base_url, secret, enabled, last_seen_at, last_version, last_error, created_at, updated_at`

func scanProbe(scanner interface{ Scan(...any) error }) (models.Probe, error) {
	var p models.Probe
	var lastSeen sql.NullTime
	err := scanner.Scan(
		&p.ID, &p.Name, &p.BaseURL, &p.Secret, &p.Enabled,
		&lastSeen, &p.LastVersion, &p.LastError, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.LastSeenAt = models.TimePtr(lastSeen)
	return p, nil
}

// CreateProbe registers a controller endpoint.
func CreateProbe(req models.ProbeCreateRequest) (models.Probe, error) {
	var p models.Probe
	p.Name = strings.TrimSpace(req.Name)
	p.BaseURL = strings.TrimRight(strings.TrimSpace(req.BaseURL), "/")
	if p.Name == "" {
		return p, errors.New("probe name is required")
	}
	if p.BaseURL == "" {
		return p, errors.New("probe base_url is required")
	}
	p.Secret = req.Secret
	p.Enabled = true
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}

	stmt, err := DB.Prepare("INSERT INTO probes (name, base_url, secret, enabled) VALUES (?, ?, ?, ?)")
	if err != nil {
		return p, fmt.Errorf("preparing insert probe statement: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(p.Name, p.BaseURL, p.Secret, p.Enabled)
	if err != nil {
		return p, fmt.Errorf("executing insert probe statement for name '%s': %w", p.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return p, fmt.Errorf("getting last insert ID for probe '%s': %w", p.Name, err)
	}
	p.ID = id
	return p, nil
}

// GetProbeByID retrieves a single probe by its ID.
func GetProbeByID(probeID int64) (models.Probe, error) {
	row := DB.QueryRow("SELECT "+probeColumns+" FROM probes WHERE id = ?", probeID)
	p, err := scanProbe(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("probe with ID %d not found: %w", probeID, err)
		}
		return p, fmt.Errorf("querying probe ID %d: %w", probeID, err)
	}
	return p, nil
}

// GetAllProbes retrieves every probe ordered by name.
func GetAllProbes() ([]models.Probe, error) {
	rows, err := DB.Query("SELECT " + probeColumns + " FROM probes ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("querying all probes: %w", err)
	}
	defer rows.Close()

	var probes []models.Probe
	for rows.Next() {
		p, err := scanProbe(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning probe row: %w", err)
		}
		probes = append(probes, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating probe rows: %w", err)
	}
	return probes, nil
}

// ListEnabledProbes returns the probes the background poller should visit.
func ListEnabledProbes() ([]models.Probe, error) {
	rows, err := DB.Query("SELECT " + probeColumns + " FROM probes WHERE enabled = 1 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying enabled probes: %w", err)
	}
	defer rows.Close()

	var probes []models.Probe
	for rows.Next() {
		p, err := scanProbe(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning enabled probe row: %w", err)
		}
		probes = append(probes, p)
	}
	return probes, rows.Err()
}

// UpdateProbe applies the non-nil fields of the update request.
func UpdateProbe(probeID int64, req models.ProbeUpdateRequest) (models.Probe, error) {
	setClauses := []string{}
	args := []any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return models.Probe{}, errors.New("probe name is required for update")
		}
		setClauses = append(setClauses, "name = ?")
		args = append(args, name)
	}
	if req.BaseURL != nil {
		baseURL := strings.TrimRight(strings.TrimSpace(*req.BaseURL), "/")
		if baseURL == "" {
			return models.Probe{}, errors.New("probe base_url is required for update")
		}
		setClauses = append(setClauses, "base_url = ?")
		args = append(args, baseURL)
	}
	if req.Secret != nil {
		setClauses = append(setClauses, "secret = ?")
		args = append(args, *req.Secret)
	}
	if req.Enabled != nil {
		setClauses = append(setClauses, "enabled = ?")
		args = append(args, *req.Enabled)
	}
	if len(setClauses) == 0 {
		return GetProbeByID(probeID)
	}
	setClauses = append(setClauses, "updated_at = CURRENT_TIMESTAMP")

	query := fmt.Sprintf("UPDATE probes SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	result, err := DB.Exec(query, append(args, probeID)...)
	if err != nil {
		return models.Probe{}, fmt.Errorf("executing update probe statement for ID %d: %w", probeID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return models.Probe{}, fmt.Errorf("probe with ID %d not found: %w", probeID, sql.ErrNoRows)
	}
	return GetProbeByID(probeID)
}

// UpdateProbePollResult records the outcome of one poll. A successful poll
// clears last_error and refreshes last_seen_at.
func UpdateProbePollResult(probeID int64, version string, pollErr string, seenAt time.Time) error {
	var stmt *sql.Stmt
	var err error
	if pollErr == "" {
		stmt, err = DB.Prepare(`
			UPDATE probes
			SET last_seen_at = ?, last_version = ?, last_error = '', updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`)
		if err == nil {
			_, err = stmt.Exec(seenAt, version, probeID)
		}
	} else {
		stmt, err = DB.Prepare(`
			UPDATE probes
			SET last_error = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`)
		if err == nil {
			_, err = stmt.Exec(pollErr, probeID)
		}
	}
	if stmt != nil {
		defer stmt.Close()
	}
	if err != nil {
		return fmt.Errorf("recording poll result for probe %d: %w", probeID, err)
	}
	return nil
}

// DeleteProbe deletes a probe by its ID, cascading to its traffic samples.
func DeleteProbe(probeID int64) error {
	stmt, err := DB.Prepare("DELETE FROM probes WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing delete probe statement for ID %d: %w", probeID, err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(probeID)
	if err != nil {
		return fmt.Errorf("executing delete probe statement for ID %d: %w", probeID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("probe with ID %d not found: %w", probeID, sql.ErrNoRows)
	}
	return nil
}
