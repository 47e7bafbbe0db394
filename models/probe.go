package models

import (
	"time"
)

// Probe points at a running Clash/Mihomo instance whose external controller
// API the panel polls for version, connection and traffic data.
type Probe struct {
	ID            int64      `json:"id" example:"1" format:"int64" readOnly:"true"`
	Name          string     `json:"name" example:"living-room-router" binding:"required"`
	BaseURL       string     `json:"base_url" example:"http://192.168.1.1:9090" binding:"required" format:"url"` // External controller address.
	Secret        string     `json:"secret,omitempty"`                                                           // Controller bearer secret, if set.
	Enabled       bool       `json:"enabled" example:"true"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty" readOnly:"true" swaggertype:"string" format:"date-time"`
	LastVersion   string     `json:"last_version,omitempty" example:"v1.18.5" readOnly:"true"`
	LastError     string     `json:"last_error,omitempty" readOnly:"true"`
	CreatedAt     time.Time  `json:"created_at" readOnly:"true"`
	UpdatedAt     time.Time  `json:"updated_at" readOnly:"true"`
}

// ProbeCreateRequest is the body for registering a controller endpoint.
type ProbeCreateRequest struct {
	Name    string `json:"name" example:"living-room-router" binding:"required"`
	BaseURL string `json:"base_url" example:"http://192.168.1.1:9090" binding:"required" format:"url"`
	Secret  string `json:"secret,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"` // Defaults to true.
}

// ProbeUpdateRequest defines the fields that can be updated for a probe.
type ProbeUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	BaseURL *string `json:"base_url,omitempty"`
	Secret  *string `json:"secret,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// ProbeStatus is a live snapshot taken from the controller API.
type ProbeStatus struct {
	ProbeID         int64  `json:"probe_id" format:"int64"`
	Reachable       bool   `json:"reachable"`
	Version         string `json:"version,omitempty" example:"v1.18.5"`
	ConnectionCount int    `json:"connection_count" example:"23"`
	UploadTotal     int64  `json:"upload_total" example:"1073741824"`   // Bytes since the controller started.
	DownloadTotal   int64  `json:"download_total" example:"5368709120"` // Bytes since the controller started.
	Error           string `json:"error,omitempty"`
}

// TrafficSample is one stored up/down reading from a controller's traffic
// stream, in bytes per second.
type TrafficSample struct {
	ID         int64     `json:"id" format:"int64" readOnly:"true"`
	ProbeID    int64     `json:"probe_id" format:"int64"`
	Up         int64     `json:"up" example:"12890"`
	Down       int64     `json:"down" example:"908221"`
	RecordedAt time.Time `json:"recorded_at" readOnly:"true"`
}
