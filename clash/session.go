package clash

import "fmt"

// Session is an explicit edit buffer over one parsed document. All edits go
// through the session so that dirtiness and the revision the edits were
// based on travel with the buffer instead of living in ambient state.
// Nothing is persisted until the caller saves the serialized result.
type Session struct {
	doc          *Document
	name         string
	baseRevision int64
	dirty        bool
}

// NewSession parses raw into an edit buffer. revision is the stored
// document revision the buffer starts from; save layers use it to refuse
// writing over a document that changed underneath the editor.
func NewSession(name string, raw []byte, revision int64) (*Session, error) {
	doc, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return &Session{doc: doc, name: name, baseRevision: revision}, nil
}

// Document exposes the underlying buffer for read-only inspection.
func (s *Session) Document() *Document { return s.doc }

// Name returns the document name the session was opened for.
func (s *Session) Name() string { return s.name }

// BaseRevision returns the stored revision this buffer was opened from.
func (s *Session) BaseRevision() int64 { return s.baseRevision }

// Dirty reports whether any edit has been applied since open or last save.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) RenameGroup(oldName, newName string) error {
	if err := s.doc.RenameGroup(oldName, newName); err != nil {
		return err
	}
	if oldName != newName {
		s.dirty = true
	}
	return nil
}

func (s *Session) RemoveGroup(name string) error {
	if err := s.doc.RemoveGroup(name); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

func (s *Session) RemoveMember(group string, index int) error {
	if err := s.doc.RemoveMember(group, index); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

func (s *Session) MoveMember(group string, from, to int) error {
	if err := s.doc.MoveMember(group, from, to); err != nil {
		return err
	}
	if from != to {
		s.dirty = true
	}
	return nil
}

func (s *Session) MoveGroup(from, to int) error {
	if err := s.doc.MoveGroup(from, to); err != nil {
		return err
	}
	if from != to {
		s.dirty = true
	}
	return nil
}

func (s *Session) AddGroup(g ProxyGroup) error {
	if err := s.doc.AddGroup(g); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

func (s *Session) AddMember(group, ref string) error {
	if err := s.doc.AddMember(group, ref); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// UnresolvedRuleTargets reports rule targets outside the valid set.
func (s *Session) UnresolvedRuleTargets() []string {
	return s.doc.UnresolvedRuleTargets()
}

// UnresolvedMemberRefs reports membership entries outside the valid set.
func (s *Session) UnresolvedMemberRefs() []string {
	return s.doc.UnresolvedMemberRefs()
}

// ReplaceUnresolved bulk-substitutes every unresolved rule target with the
// chosen value, which must itself be a sentinel or an existing group.
func (s *Session) ReplaceUnresolved(target string) (int, error) {
	if _, ok := s.doc.ValidTargets()[target]; !ok {
		return 0, fmt.Errorf("replacement target %q is neither a sentinel nor an existing group", target)
	}
	n := s.doc.ApplyReplacement(target)
	if n > 0 {
		s.dirty = true
	}
	return n, nil
}

// Serialize renders the current buffer.
func (s *Session) Serialize() ([]byte, error) {
	return s.doc.Serialize()
}

// MarkSaved records a successful persist at the given revision and clears
// the dirty flag.
func (s *Session) MarkSaved(revision int64) {
	s.baseRevision = revision
	s.dirty = false
}
