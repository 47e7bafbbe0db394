package models

// SubscriptionFilters defines parameters for filtering subscription list queries.
type SubscriptionFilters struct {
	Page        int    `json:"page"`
	Limit       int    `json:"limit"`
	SortBy      string `json:"sort_by"`
	SortOrder   string `json:"sort_order"`
	EnabledOnly bool   `json:"enabled_only"`
	SearchText  string `json:"search,omitempty"`
}

// NodeFilters defines parameters for filtering node list queries.
type NodeFilters struct {
	Page           int    `json:"page"`
	Limit          int    `json:"limit"`
	SortBy         string `json:"sort_by"`
	SortOrder      string `json:"sort_order"`
	SubscriptionID int64  `json:"subscription_id,omitempty"` // 0 means all subscriptions
	Protocol       string `json:"protocol,omitempty"`
	SearchText     string `json:"search,omitempty"`
}

// RelayTrafficFilters defines parameters for filtering relay traffic log queries.
type RelayTrafficFilters struct {
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	SortBy     string `json:"sort_by"`
	SortOrder  string `json:"sort_order"`
	Protocol   string `json:"protocol,omitempty"` // "http" or "socks5"
	HostSearch string `json:"host_search,omitempty"`
	Since      string `json:"since,omitempty"` // RFC3339 lower bound on started_at
}

// PaginatedResponse is a generic structure for paginated API responses.
type PaginatedResponse struct {
	Page         int         `json:"page"`
	Limit        int         `json:"limit"`
	TotalRecords int         `json:"total_records"`
	TotalPages   int         `json:"total_pages"`
	Records      interface{} `json:"records"` // Can hold any type of record slice
}
