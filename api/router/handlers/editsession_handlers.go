package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/clash"
	"github.com/iluobei/miaomiaowu-sub001/core"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

// writeEditOpError maps edit-session operation failures onto HTTP statuses:
// missing sessions and groups are 404, name collisions 409, everything else
// a plain 400 carrying the operation's own message.
func writeEditOpError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		http.Error(w, "Edit session not found or expired", http.StatusNotFound)
	case errors.Is(err, clash.ErrGroupNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, clash.ErrGroupExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Debug("Edit operation on session %s rejected: %v", sessionID, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

// respondSessionState writes the session descriptor after a successful edit,
// so the client sees the dirty flag and the slid expiry.
func respondSessionState(w http.ResponseWriter, sessionID string) {
	state, err := editorStore.Describe(sessionID)
	if err != nil {
		http.Error(w, "Edit session not found or expired", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// DescribeEditSessionHandler handles GET requests for an edit session's state.
func DescribeEditSessionHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	respondSessionState(w, sessionID)
}

// GetEditSessionDocumentHandler handles GET requests serializing the session's
// current in-memory document.
func GetEditSessionDocumentHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	data, err := editorStore.Document(sessionID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			http.Error(w, "Edit session not found or expired", http.StatusNotFound)
		} else {
			logger.Error("GetEditSessionDocumentHandler: Error serializing session %s: %v", sessionID, err)
			http.Error(w, "Failed to serialize document", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// RenameGroupHandler renames a proxy group and rewrites every membership
// entry and rule target referring to it.
// @Summary Rename a proxy group
// @Description Renames the group and rewrites all other groups' membership entries and all rule targets equal to the old name. Collisions with existing groups or builtin policies are rejected.
// @Tags EditSessions
// @Accept json
// @Produce json
// @Param sessionID path string true "Edit session ID"
// @Param rename body models.RenameGroupRequest true "Old and new group name"
// @Success 200 {object} models.EditSessionResponse
// @Failure 404 {object} models.ErrorResponse "Session or group not found"
// @Failure 409 {object} models.ErrorResponse "New name already in use"
// @Router /edit-sessions/{sessionID}/rename-group [post]
func RenameGroupHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.RenameGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := editorStore.RenameGroup(sessionID, req.From, req.To); err != nil {
		writeEditOpError(w, sessionID, err)
		return
	}
	respondSessionState(w, sessionID)
}

// RemoveGroupHandler deletes a group and strips it from every other group's
// membership list. Rule targets are left for validation to report.
func RemoveGroupHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := editorStore.RemoveGroup(sessionID, req.Name); err != nil {
		writeEditOpError(w, sessionID, err)
		return
	}
	respondSessionState(w, sessionID)
}

// RemoveMemberHandler removes one member of a group by position.
func RemoveMemberHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.RemoveMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := editorStore.RemoveMember(sessionID, req.Group, req.Index); err != nil {
		writeEditOpError(w, sessionID, err)
		return
	}
	respondSessionState(w, sessionID)
}

// MoveMemberHandler reorders one member within a group's proxies list.
func MoveMemberHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.MoveMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := editorStore.MoveMember(sessionID, req.Group, req.From, req.To); err != nil {
		writeEditOpError(w, sessionID, err)
		return
	}
	respondSessionState(w, sessionID)
}

// MoveGroupHandler reorders the proxy-groups sequence itself.
func MoveGroupHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.MoveGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := editorStore.MoveGroup(sessionID, req.From, req.To); err != nil {
		writeEditOpError(w, sessionID, err)
		return
	}
	respondSessionState(w, sessionID)
}

// AddGroupHandler appends a new proxy group to the document.
func AddGroupHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.AddGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := editorStore.AddGroup(sessionID, req.Name, req.Type, req.Proxies); err != nil {
		writeEditOpError(w, sessionID, err)
		return
	}
	respondSessionState(w, sessionID)
}

// AddMemberHandler appends a member reference to an existing group.
func AddMemberHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := editorStore.AddMember(sessionID, req.Group, req.Member); err != nil {
		writeEditOpError(w, sessionID, err)
		return
	}
	respondSessionState(w, sessionID)
}

// ValidateEditSessionHandler handles GET requests reporting unresolved rule
// targets and membership references in the session's current document.
// @Summary Validate the session document
// @Description Reports every rule target and group member naming neither a declared group, a node, nor a builtin policy.
// @Tags EditSessions
// @Produce json
// @Param sessionID path string true "Edit session ID"
// @Success 200 {object} models.ValidationReport
// @Failure 404 {object} models.ErrorResponse "Session not found"
// @Router /edit-sessions/{sessionID}/validate [get]
func ValidateEditSessionHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	report, err := editorStore.Validate(sessionID)
	if err != nil {
		writeEditOpError(w, sessionID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// ReplaceUnresolvedHandler rewrites every unresolved rule target to a single
// replacement value.
// @Summary Replace all unresolved rule targets
// @Description All-or-nothing bulk substitution: every rule whose target is unresolved gets the chosen replacement. Returns the number of rewritten rules.
// @Tags EditSessions
// @Accept json
// @Produce json
// @Param sessionID path string true "Edit session ID"
// @Param replacement body models.ReplaceUnresolvedRequest true "Replacement target"
// @Success 200 {object} map[string]int "{"replaced": 3}"
// @Failure 400 {object} models.ErrorResponse "Empty replacement"
// @Failure 404 {object} models.ErrorResponse "Session not found"
// @Router /edit-sessions/{sessionID}/replace-unresolved [post]
func ReplaceUnresolvedHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.ReplaceUnresolvedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Replacement) == "" {
		http.Error(w, "Replacement target is required", http.StatusBadRequest)
		return
	}

	replaced, err := editorStore.ReplaceUnresolved(sessionID, req.Replacement)
	if err != nil {
		writeEditOpError(w, sessionID, err)
		return
	}

	logger.Info("Session %s: replaced %d unresolved rule targets with '%s'.", sessionID, replaced, req.Replacement)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"replaced": replaced})
}

// SaveEditSessionHandler commits the session's document back to storage.
// @Summary Save the edit session
// @Description Serializes the session document and writes it back. Refused with 409 when the stored revision moved since the session opened, unless force is set.
// @Tags EditSessions
// @Accept json
// @Produce json
// @Param sessionID path string true "Edit session ID"
// @Param save body models.SaveSessionRequest false "Set force to overwrite a stale revision"
// @Success 200 {object} models.EditSessionResponse
// @Failure 404 {object} models.ErrorResponse "Session or config file not found"
// @Failure 409 {object} models.ErrorResponse "Stale revision"
// @Router /edit-sessions/{sessionID}/save [post]
func SaveEditSessionHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req models.SaveSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer r.Body.Close()

	state, err := editorStore.Save(sessionID, req.Force)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrSessionNotFound):
			http.Error(w, "Edit session not found or expired", http.StatusNotFound)
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "Config file no longer exists", http.StatusNotFound)
		case errors.Is(err, database.ErrStaleRevision):
			logger.Info("SaveEditSessionHandler: Stale revision on session %s: %v", sessionID, err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ErrorResponse{Message: fmt.Sprintf("Config file was changed by someone else since this session opened: %v. Save with force to overwrite.", err)})
		default:
			logger.Error("SaveEditSessionHandler: Error saving session %s: %v", sessionID, err)
			http.Error(w, "Failed to save config file", http.StatusInternalServerError)
		}
		return
	}

	logger.Info("Session %s saved config file %d at revision %d.", sessionID, state.ConfigFileID, state.BaseRevision)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// DiscardEditSessionHandler handles DELETE requests closing a session without
// saving.
func DiscardEditSessionHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := editorStore.Discard(sessionID); err != nil {
		http.Error(w, "Edit session not found or expired", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
