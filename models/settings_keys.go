package models

// JWTSecretKey is the database setting key storing the generated JWT signing
// secret, used when auth.jwt_secret is not set in the configuration file.
const JWTSecretKey = "auth_jwt_secret"

// PanelNameKey is the database setting key for the display name of the panel.
const PanelNameKey = "panel_name"

// DefaultReplacementTargetKey is the database setting key for the target offered
// by default when bulk-repairing unresolved rule references.
const DefaultReplacementTargetKey = "default_replacement_target"

// SubscriptionUserAgentKey is the database setting key overriding the
// User-Agent sent to subscription upstreams.
const SubscriptionUserAgentKey = "subscription_user_agent"
