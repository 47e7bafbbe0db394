package models

import (
	"time"
)

// ConfigFile is a stored proxy configuration document. Content holds the raw
// YAML exactly as last saved; Revision increments on every successful save and
// guards edit sessions against concurrent writers.
type ConfigFile struct {
	ID             int64     `json:"id" example:"1" format:"int64" readOnly:"true"`
	Name           string    `json:"name" example:"home.yaml" binding:"required"` // Unique display name of the document.
	Content        string    `json:"content,omitempty"`                           // Raw YAML. Omitted from list responses.
	Revision       int64     `json:"revision" example:"4" readOnly:"true"`
	SubscriptionID *int64    `json:"subscription_id,omitempty" format:"int64"` // Set when the document was imported from a subscription.
	CreatedAt      time.Time `json:"created_at" readOnly:"true"`
	UpdatedAt      time.Time `json:"updated_at" readOnly:"true"`
}

// ConfigFileSummary is the list-view projection of a ConfigFile, with counts
// computed from the parsed document instead of the raw content.
type ConfigFileSummary struct {
	ID             int64     `json:"id" format:"int64"`
	Name           string    `json:"name" example:"home.yaml"`
	Revision       int64     `json:"revision" example:"4"`
	SubscriptionID *int64    `json:"subscription_id,omitempty" format:"int64"`
	ProxyCount     int       `json:"proxy_count" example:"42"`
	GroupCount     int       `json:"group_count" example:"7"`
	RuleCount      int       `json:"rule_count" example:"385"`
	Unresolved     int       `json:"unresolved" example:"0"` // Rule targets naming no group or builtin policy.
	ParseError     string    `json:"parse_error,omitempty"`  // Non-empty when the stored content no longer parses.
	UpdatedAt      time.Time `json:"updated_at"`
}

// ConfigFileCreateRequest is the body for creating a stored document.
type ConfigFileCreateRequest struct {
	Name    string `json:"name" example:"home.yaml" binding:"required"`
	Content string `json:"content" binding:"required"` // Raw YAML; must parse before it is accepted.
}

// ConfigFileUpdateRequest is the body for a direct (non-session) content update.
type ConfigFileUpdateRequest struct {
	Content  string `json:"content" binding:"required"`
	Revision int64  `json:"revision" example:"4"` // Revision the client last read; a mismatch rejects the write.
}

// EditSessionResponse describes an open server-side edit session.
type EditSessionResponse struct {
	SessionID    string    `json:"session_id" example:"6e0c6cb4-6f8e-4e30-9f0b-3a1c1f2d4b5a"`
	ConfigFileID int64     `json:"config_file_id" format:"int64"`
	Name         string    `json:"name" example:"home.yaml"`
	BaseRevision int64     `json:"base_revision" example:"4"`
	Dirty        bool      `json:"dirty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RenameGroupRequest renames a proxy group inside an edit session.
type RenameGroupRequest struct {
	From string `json:"from" example:"Auto" binding:"required"`
	To   string `json:"to" example:"Auto-Fallback" binding:"required"`
}

// RemoveMemberRequest removes one member of a group by position.
type RemoveMemberRequest struct {
	Group string `json:"group" example:"Select" binding:"required"`
	Index int    `json:"index" example:"2"`
}

// MoveMemberRequest moves a member within a group's proxies list.
type MoveMemberRequest struct {
	Group string `json:"group" example:"Select" binding:"required"`
	From  int    `json:"from" example:"2"`
	To    int    `json:"to" example:"0"`
}

// MoveGroupRequest reorders the proxy-groups sequence itself.
type MoveGroupRequest struct {
	From int `json:"from" example:"3"`
	To   int `json:"to" example:"1"`
}

// AddGroupRequest appends a new proxy group.
type AddGroupRequest struct {
	Name    string   `json:"name" example:"Media" binding:"required"`
	Type    string   `json:"type,omitempty" example:"select"` // Defaults to "select" when empty.
	Proxies []string `json:"proxies,omitempty"`
}

// AddMemberRequest appends a member to an existing group.
type AddMemberRequest struct {
	Group  string `json:"group" example:"Media" binding:"required"`
	Member string `json:"member" example:"HK-01" binding:"required"`
}

// ReplaceUnresolvedRequest rewrites every unresolved rule target to one
// replacement value in a single pass.
type ReplaceUnresolvedRequest struct {
	Replacement string `json:"replacement" example:"DIRECT" binding:"required"`
}

// ValidationReport lists the consistency findings for a document.
type ValidationReport struct {
	UnresolvedRuleTargets []string `json:"unresolved_rule_targets"` // Rule targets naming no group or builtin policy.
	UnresolvedMemberRefs  []string `json:"unresolved_member_refs"`  // Group members naming no node, group or builtin policy.
	Valid                 bool     `json:"valid"`
}

// SaveSessionRequest commits an edit session back to storage.
type SaveSessionRequest struct {
	// Force skips the stale-revision check and overwrites regardless.
	Force bool `json:"force,omitempty"`
}
