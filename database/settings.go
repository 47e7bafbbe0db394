package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

// GetSetting retrieves a specific setting value from the app_settings table.
func GetSetting(key string) (string, error) {
	var value string
	err := DB.QueryRow("SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil // Return empty string if not found, not an error
		}
		return "", fmt.Errorf("failed to get setting '%s': %w", key, err)
	}
	return value, nil
}

// SetSetting saves or updates a specific setting value in the app_settings table.
func SetSetting(key, value string) error {
	stmt, err := DB.Prepare("INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare set setting statement for key '%s': %w", key, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(key, value)
	if err != nil {
		return fmt.Errorf("failed to execute set setting for key '%s': %w", key, err)
	}
	return nil
}

// EnsureJWTSecret returns the JWT signing secret stored in app_settings,
// generating and persisting a random one on first use. Callers pass the
// configured secret; when it is non-empty it wins and nothing is stored.
func EnsureJWTSecret(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	secret, err := GetSetting(models.JWTSecretKey)
	if err != nil {
		return "", fmt.Errorf("failed to read stored JWT secret: %w", err)
	}
	if secret != "" {
		return secret, nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	secret = hex.EncodeToString(raw)
	if err := SetSetting(models.JWTSecretKey, secret); err != nil {
		return "", fmt.Errorf("failed to persist generated JWT secret: %w", err)
	}
	logger.Info("Generated a new JWT signing secret and stored it in app_settings.")
	return secret, nil
}

// GetPanelSettings collects the user-facing settings into one structure.
func GetPanelSettings() (models.PanelSettings, error) {
	var s models.PanelSettings
	var err error
	if s.PanelName, err = GetSetting(models.PanelNameKey); err != nil {
		return s, err
	}
	if s.DefaultReplacementTarget, err = GetSetting(models.DefaultReplacementTargetKey); err != nil {
		return s, err
	}
	if s.SubscriptionUserAgent, err = GetSetting(models.SubscriptionUserAgentKey); err != nil {
		return s, err
	}
	return s, nil
}

// SetPanelSettings writes back every user-facing setting.
func SetPanelSettings(s models.PanelSettings) error {
	if err := SetSetting(models.PanelNameKey, s.PanelName); err != nil {
		return err
	}
	if err := SetSetting(models.DefaultReplacementTargetKey, s.DefaultReplacementTarget); err != nil {
		return err
	}
	return SetSetting(models.SubscriptionUserAgentKey, s.SubscriptionUserAgent)
}
