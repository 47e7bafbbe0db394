package models

import (
	"time"
)

// Subscription is an upstream subscription URL the panel pulls proxy nodes
// and configuration documents from. Traffic counters mirror the
// subscription-userinfo header reported by the upstream, in bytes.
type Subscription struct {
	ID                   int64      `json:"id" example:"1" format:"int64" readOnly:"true"`
	Name                 string     `json:"name" example:"my-airport" binding:"required"`
	URL                  string     `json:"url" example:"https://airport.example.com/sub?token=abc" binding:"required" format:"url"`
	Enabled              bool       `json:"enabled" example:"true"`
	FetchIntervalMinutes int        `json:"fetch_interval_minutes" example:"360"` // 0 disables scheduled sync for this entry.
	LastSyncAt           *time.Time `json:"last_sync_at,omitempty" readOnly:"true" swaggertype:"string" format:"date-time"`
	LastStatus           string     `json:"last_status,omitempty" example:"ok (42 nodes)" readOnly:"true"`
	LastError            string     `json:"last_error,omitempty" readOnly:"true"`
	NodeCount            int        `json:"node_count" example:"42" readOnly:"true"`
	Upload               int64      `json:"upload" example:"1073741824" readOnly:"true"`
	Download             int64      `json:"download" example:"53687091200" readOnly:"true"`
	Total                int64      `json:"total" example:"107374182400" readOnly:"true"`
	ExpireAt             *time.Time `json:"expire_at,omitempty" readOnly:"true" swaggertype:"string" format:"date-time"`
	CreatedAt            time.Time  `json:"created_at" readOnly:"true"`
	UpdatedAt            time.Time  `json:"updated_at" readOnly:"true"`
}

// SubscriptionCreateRequest is the body for registering an upstream.
type SubscriptionCreateRequest struct {
	Name                 string `json:"name" example:"my-airport" binding:"required"`
	URL                  string `json:"url" example:"https://airport.example.com/sub?token=abc" binding:"required" format:"url"`
	Enabled              *bool  `json:"enabled,omitempty"`                              // Defaults to true.
	FetchIntervalMinutes int    `json:"fetch_interval_minutes,omitempty" example:"360"` // Defaults to 360.
}

// SubscriptionUpdateRequest defines the fields that can be updated for a subscription.
type SubscriptionUpdateRequest struct {
	Name                 *string `json:"name,omitempty"`
	URL                  *string `json:"url,omitempty"`
	Enabled              *bool   `json:"enabled,omitempty"`
	FetchIntervalMinutes *int    `json:"fetch_interval_minutes,omitempty"`
}

// SyncResult reports the outcome of one subscription sync pass.
type SyncResult struct {
	SubscriptionID int64  `json:"subscription_id" format:"int64"`
	Status         string `json:"status" example:"ok (42 nodes)"`
	NodeCount      int    `json:"node_count" example:"42"`
	DocumentSaved  bool   `json:"document_saved"` // True when the upstream returned a full YAML document and it was stored.
	Error          string `json:"error,omitempty"`
}

// SubscriptionPreview summarizes what an upstream currently serves without
// importing anything. IsDocument distinguishes a full YAML configuration from
// a plain share-link list. NodeNames is capped, not exhaustive.
type SubscriptionPreview struct {
	ContentType string     `json:"content_type" example:"text/yaml; charset=utf-8"`
	Bytes       int        `json:"bytes" example:"48213"`
	IsDocument  bool       `json:"is_document"`
	ProxyCount  int        `json:"proxy_count" example:"42"`
	GroupCount  int        `json:"group_count" example:"6"`
	RuleCount   int        `json:"rule_count" example:"380"`
	Unresolved  []string   `json:"unresolved,omitempty"`
	NodeNames   []string   `json:"node_names,omitempty"`
	Upload      int64      `json:"upload,omitempty" example:"1073741824"`
	Download    int64      `json:"download,omitempty" example:"53687091200"`
	Total       int64      `json:"total,omitempty" example:"107374182400"`
	ExpireAt    *time.Time `json:"expire_at,omitempty" swaggertype:"string" format:"date-time"`
}
