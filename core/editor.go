package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/clash"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/metrics"
	"github.com/iluobei/miaomiaowu-sub001/models"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired edit session IDs.
var ErrSessionNotFound = errors.New("edit session not found")

type editSession struct {
	id           string
	configFileID int64
	session      *clash.Session
	expiresAt    time.Time
}

// EditorStore holds the open server-side edit sessions. Every mutation of a
// document between open and save happens against the session's in-memory
// copy; storage is only touched on save.
type EditorStore struct {
	mu       sync.Mutex
	sessions map[string]*editSession
	ttl      time.Duration
}

// NewEditorStore builds a store whose sessions expire after ttl of inactivity.
func NewEditorStore(ttl time.Duration) *EditorStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &EditorStore{
		sessions: make(map[string]*editSession),
		ttl:      ttl,
	}
}

// Open loads a stored document into a fresh session and returns its handle.
func (e *EditorStore) Open(cf models.ConfigFile) (models.EditSessionResponse, error) {
	session, err := clash.NewSession(cf.Name, []byte(cf.Content), cf.Revision)
	if err != nil {
		return models.EditSessionResponse{}, fmt.Errorf("opening edit session for '%s': %w", cf.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s := &editSession{
		id:           uuid.NewString(),
		configFileID: cf.ID,
		session:      session,
		expiresAt:    time.Now().Add(e.ttl),
	}
	e.sessions[s.id] = s
	metrics.EditSessionOpened()
	logger.Info("Opened edit session %s for config file '%s' (revision %d)", s.id, cf.Name, cf.Revision)
	return e.describeLocked(s), nil
}

// get returns the live session and slides its expiry. Callers hold e.mu.
func (e *EditorStore) get(sessionID string) (*editSession, error) {
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Now().After(s.expiresAt) {
		delete(e.sessions, sessionID)
		metrics.EditSessionClosed()
		return nil, ErrSessionNotFound
	}
	s.expiresAt = time.Now().Add(e.ttl)
	return s, nil
}

func (e *EditorStore) describeLocked(s *editSession) models.EditSessionResponse {
	return models.EditSessionResponse{
		SessionID:    s.id,
		ConfigFileID: s.configFileID,
		Name:         s.session.Name(),
		BaseRevision: s.session.BaseRevision(),
		Dirty:        s.session.Dirty(),
		ExpiresAt:    s.expiresAt,
	}
}

// Describe returns the session's current state.
func (e *EditorStore) Describe(sessionID string) (models.EditSessionResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.get(sessionID)
	if err != nil {
		return models.EditSessionResponse{}, err
	}
	return e.describeLocked(s), nil
}

// Document serializes the session's working copy, unsaved edits included.
func (e *EditorStore) Document(sessionID string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.session.Serialize()
}

// RenameGroup renames a proxy group and rewrites every reference to it.
func (e *EditorStore) RenameGroup(sessionID, from, to string) error {
	return e.withSession(sessionID, func(s *editSession) error {
		return s.session.RenameGroup(from, to)
	})
}

// RemoveGroup deletes a group and strips it from other groups' member lists.
func (e *EditorStore) RemoveGroup(sessionID, name string) error {
	return e.withSession(sessionID, func(s *editSession) error {
		return s.session.RemoveGroup(name)
	})
}

// RemoveMember removes one member of a group by position.
func (e *EditorStore) RemoveMember(sessionID, group string, index int) error {
	return e.withSession(sessionID, func(s *editSession) error {
		return s.session.RemoveMember(group, index)
	})
}

// MoveMember moves a member within a group's proxies list.
func (e *EditorStore) MoveMember(sessionID, group string, from, to int) error {
	return e.withSession(sessionID, func(s *editSession) error {
		return s.session.MoveMember(group, from, to)
	})
}

// MoveGroup reorders the proxy-groups sequence.
func (e *EditorStore) MoveGroup(sessionID string, from, to int) error {
	return e.withSession(sessionID, func(s *editSession) error {
		return s.session.MoveGroup(from, to)
	})
}

// AddGroup appends a new proxy group.
func (e *EditorStore) AddGroup(sessionID, name, groupType string, proxies []string) error {
	return e.withSession(sessionID, func(s *editSession) error {
		return s.session.AddGroup(clash.ProxyGroup{Name: name, Type: groupType, Proxies: proxies})
	})
}

// AddMember appends a member to an existing group.
func (e *EditorStore) AddMember(sessionID, group, member string) error {
	return e.withSession(sessionID, func(s *editSession) error {
		return s.session.AddMember(group, member)
	})
}

func (e *EditorStore) withSession(sessionID string, fn func(*editSession) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.get(sessionID)
	if err != nil {
		return err
	}
	return fn(s)
}

// Validate reports the session's consistency findings.
func (e *EditorStore) Validate(sessionID string) (models.ValidationReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.get(sessionID)
	if err != nil {
		return models.ValidationReport{}, err
	}
	report := models.ValidationReport{
		UnresolvedRuleTargets: s.session.UnresolvedRuleTargets(),
		UnresolvedMemberRefs:  s.session.UnresolvedMemberRefs(),
	}
	report.Valid = len(report.UnresolvedRuleTargets) == 0 && len(report.UnresolvedMemberRefs) == 0
	return report, nil
}

// ReplaceUnresolved rewrites every unresolved rule target to the replacement
// and reports how many rules changed.
func (e *EditorStore) ReplaceUnresolved(sessionID, replacement string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.get(sessionID)
	if err != nil {
		return 0, err
	}
	return s.session.ReplaceUnresolved(replacement)
}

// Save serializes the working copy and commits it to storage. Without force,
// a save against a revision someone else already replaced is refused with
// database.ErrStaleRevision and the session stays open for the caller to
// re-open or force.
func (e *EditorStore) Save(sessionID string, force bool) (models.EditSessionResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.get(sessionID)
	if err != nil {
		return models.EditSessionResponse{}, err
	}

	serialized, err := s.session.Serialize()
	if err != nil {
		return models.EditSessionResponse{}, fmt.Errorf("serializing session document: %w", err)
	}

	var newRevision int64
	if force {
		newRevision, err = database.OverwriteConfigFileContent(s.configFileID, string(serialized))
	} else {
		newRevision, err = database.UpdateConfigFileContent(s.configFileID, string(serialized), s.session.BaseRevision())
	}
	if err != nil {
		return e.describeLocked(s), err
	}

	s.session.MarkSaved(newRevision)
	logger.Info("Saved edit session %s to config file %d (revision %d)", s.id, s.configFileID, newRevision)
	return e.describeLocked(s), nil
}

// Discard closes a session without saving.
func (e *EditorStore) Discard(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(e.sessions, sessionID)
	metrics.EditSessionClosed()
	logger.Info("Discarded edit session %s", sessionID)
	return nil
}

// Janitor drops expired sessions until the context is canceled.
func (e *EditorStore) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.expire()
		}
	}
}

func (e *EditorStore) expire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	for id, s := range e.sessions {
		if now.After(s.expiresAt) {
			delete(e.sessions, id)
			metrics.EditSessionClosed()
			logger.Info("Expired idle edit session %s", id)
		}
	}
}
