package models

// PanelSettings holds the user-tunable settings stored in app_settings and
// exposed through the settings API. Secrets (e.g. the generated JWT signing
// key) live in the same table but are never part of this structure.
type PanelSettings struct {
	PanelName                string `json:"panel_name" example:"miaomiaowu"`
	DefaultReplacementTarget string `json:"default_replacement_target" example:"DIRECT"` // Fallback target offered when repairing unresolved rules
	SubscriptionUserAgent    string `json:"subscription_user_agent,omitempty" example:"clash-verge/v1.6.6"`
}

// UpdateSettingRequest is the body for writing a single raw settings key.
type UpdateSettingRequest struct {
	Value string `json:"value" binding:"required"`
}
