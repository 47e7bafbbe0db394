package models

import (
	"time"
)

// Node is a single proxy server known to the panel, either imported from a
// subscription or added by hand. RawConfig preserves the node's full Clash
// proxies entry as YAML so type-specific options survive round trips.
type Node struct {
	ID             int64      `json:"id" example:"1" format:"int64" readOnly:"true"`
	SubscriptionID *int64     `json:"subscription_id,omitempty" format:"int64"` // NULL for manually added nodes.
	Name           string     `json:"name" example:"HK-01" binding:"required"`
	Protocol       string     `json:"protocol" example:"ss" enum:"ss,vmess,trojan,http,socks5"`
	Server         string     `json:"server" example:"hk01.example.com" binding:"required"`
	Port           int        `json:"port" example:"8388" binding:"required"`
	RawConfig      string     `json:"raw_config,omitempty"` // Full proxies entry as YAML.
	Alive          *bool      `json:"alive,omitempty" readOnly:"true"`
	LatencyMs      *int64     `json:"latency_ms,omitempty" readOnly:"true"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty" readOnly:"true" swaggertype:"string" format:"date-time"`
	CreatedAt      time.Time  `json:"created_at" readOnly:"true"`
	UpdatedAt      time.Time  `json:"updated_at" readOnly:"true"`
}

// NodeUpdateRequest defines the fields that can be updated for a node. Only
// the display name is editable; the rest derive from the imported link.
type NodeUpdateRequest struct {
	Name *string `json:"name,omitempty"`
}

// NodeImportRequest imports nodes from share links, one link per line.
// Supported schemes: ss://, vmess://, trojan://.
type NodeImportRequest struct {
	Links string `json:"links" binding:"required"`
}

// NodeImportResult reports how an import batch fared.
type NodeImportResult struct {
	Imported int      `json:"imported" example:"3"`
	Skipped  int      `json:"skipped" example:"1"` // Duplicates of nodes already present.
	Errors   []string `json:"errors,omitempty"`    // One entry per unparseable link.
}

// NodeCheckResult is the liveness outcome for one node.
type NodeCheckResult struct {
	NodeID    int64  `json:"node_id" format:"int64"`
	Name      string `json:"name" example:"HK-01"`
	Alive     bool   `json:"alive"`
	LatencyMs int64  `json:"latency_ms,omitempty" example:"87"`
	Error     string `json:"error,omitempty"`
}
