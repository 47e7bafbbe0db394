package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/models"
)

// GetUserByUsername retrieves an account by its unique username.
func GetUserByUsername(username string) (models.User, error) {
	var u models.User
	query := `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE username = ?`
	err := DB.QueryRow(query, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, fmt.Errorf("user '%s' not found: %w", username, err)
		}
		return u, fmt.Errorf("querying user '%s': %w", username, err)
	}
	return u, nil
}

// CreateUser inserts a new account with an already-hashed password.
func CreateUser(username, passwordHash string) (models.User, error) {
	var u models.User
	u.Username = strings.TrimSpace(username)
	if u.Username == "" {
		return u, errors.New("username is required")
	}
	u.PasswordHash = passwordHash

	stmt, err := DB.Prepare("INSERT INTO users (username, password_hash) VALUES (?, ?)")
	if err != nil {
		return u, fmt.Errorf("preparing insert user statement: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(u.Username, u.PasswordHash)
	if err != nil {
		return u, fmt.Errorf("executing insert user statement for '%s': %w", u.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return u, fmt.Errorf("getting last insert ID for user '%s': %w", u.Username, err)
	}
	u.ID = id
	return u, nil
}

// UpdateUserPassword replaces an account's password hash.
func UpdateUserPassword(userID int64, passwordHash string) error {
	stmt, err := DB.Prepare("UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing update password statement for user %d: %w", userID, err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(passwordHash, userID)
	if err != nil {
		return fmt.Errorf("executing update password statement for user %d: %w", userID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("user with ID %d not found: %w", userID, sql.ErrNoRows)
	}
	return nil
}
