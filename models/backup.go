package models

import (
	"time"
)

// BackupPayload is the whole-panel export format: every table an operator
// would want to carry to a fresh install. Traffic history is excluded; it is
// operational data, not configuration.
type BackupPayload struct {
	ExportedAt    time.Time      `json:"exported_at"`
	Users         []BackupUser   `json:"users"`
	Settings      []BackupEntry  `json:"settings"`
	Subscriptions []Subscription `json:"subscriptions"`
	ConfigFiles   []ConfigFile   `json:"config_files"`
	Nodes         []Node         `json:"nodes"`
	Probes        []Probe        `json:"probes"`
}

// BackupUser mirrors the users table. Unlike models.User it carries the
// bcrypt hash, since a restore has to reproduce it verbatim.
type BackupUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BackupEntry is one app_settings row.
type BackupEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BackupImportResult reports what a restore replaced.
type BackupImportResult struct {
	Users         int `json:"users"`
	Settings      int `json:"settings"`
	Subscriptions int `json:"subscriptions"`
	ConfigFiles   int `json:"config_files"`
	Nodes         int `json:"nodes"`
	Probes        int `json:"probes"`
}
