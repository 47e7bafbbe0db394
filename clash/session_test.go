package clash

import (
	"errors"
	"testing"
)

const editorConfig = `proxy-groups:
  - name: A
    type: select
    proxies:
      - DIRECT
  - name: B
    type: select
    proxies:
      - A
rules:
  - DOMAIN-SUFFIX,example.com,A
  - MATCH,DIRECT
`

func openSession(t *testing.T, data string) *Session {
	t.Helper()
	s, err := NewSession("config.yaml", []byte(data), 1)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func TestRenameGroupRewritesReferences(t *testing.T) {
	s := openSession(t, editorConfig)

	if err := s.RenameGroup("A", "C"); err != nil {
		t.Fatalf("RenameGroup failed: %v", err)
	}
	doc := s.Document()

	if got := doc.GroupNames(); !equalStrings(got, []string{"C", "B"}) {
		t.Errorf("group names = %v, want [C B]", got)
	}
	if !equalStrings(doc.ProxyGroups[0].Proxies, []string{"DIRECT"}) {
		t.Errorf("renamed group members = %v, want [DIRECT]", doc.ProxyGroups[0].Proxies)
	}
	if !equalStrings(doc.ProxyGroups[1].Proxies, []string{"C"}) {
		t.Errorf("other group members = %v, want [C]", doc.ProxyGroups[1].Proxies)
	}
	if doc.Rules[0].Target != "C" {
		t.Errorf("rule target = %q, want C", doc.Rules[0].Target)
	}
	if doc.Rules[1].Target != "DIRECT" {
		t.Errorf("unrelated rule target changed to %q", doc.Rules[1].Target)
	}
	if !s.Dirty() {
		t.Errorf("session should be dirty after rename")
	}
}

func TestRenameGroupRejectsCollisions(t *testing.T) {
	tests := []struct {
		name    string
		oldName string
		newName string
		wantErr error
	}{
		{name: "existing group", oldName: "A", newName: "B", wantErr: ErrGroupExists},
		{name: "sentinel", oldName: "A", newName: "DIRECT", wantErr: ErrGroupExists},
		{name: "missing group", oldName: "missing", newName: "X", wantErr: ErrGroupNotFound},
		{name: "empty new name", oldName: "A", newName: "  ", wantErr: ErrEmptyGroupName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openSession(t, editorConfig)
			err := s.RenameGroup(tt.oldName, tt.newName)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RenameGroup(%q, %q) error = %v, want %v", tt.oldName, tt.newName, err, tt.wantErr)
			}
			if s.Dirty() {
				t.Errorf("failed rename must not mark the session dirty")
			}
		})
	}
}

func TestRenameGroupToItselfIsNoop(t *testing.T) {
	s := openSession(t, editorConfig)
	if err := s.RenameGroup("A", "A"); err != nil {
		t.Fatalf("RenameGroup to same name failed: %v", err)
	}
	if s.Dirty() {
		t.Errorf("self rename must not mark the session dirty")
	}
}

func TestRemoveGroupLeavesRulesDangling(t *testing.T) {
	s := openSession(t, editorConfig)

	if err := s.RemoveGroup("A"); err != nil {
		t.Fatalf("RemoveGroup failed: %v", err)
	}
	doc := s.Document()

	if got := doc.GroupNames(); !equalStrings(got, []string{"B"}) {
		t.Errorf("group names = %v, want [B]", got)
	}
	if len(doc.ProxyGroups[0].Proxies) != 0 {
		t.Errorf("membership reference to removed group survived: %v", doc.ProxyGroups[0].Proxies)
	}
	// The rule still points at A; removal does not rewrite rules.
	if doc.Rules[0].Target != "A" {
		t.Errorf("rule target = %q, want the dangling A", doc.Rules[0].Target)
	}
	if got := s.UnresolvedRuleTargets(); !equalStrings(got, []string{"A"}) {
		t.Errorf("unresolved targets = %v, want [A]", got)
	}
}

func TestRemoveMemberByIndex(t *testing.T) {
	s := openSession(t, `proxy-groups:
  - name: Select
    type: select
    proxies: [one, two, three]
`)
	if err := s.RemoveMember("Select", 1); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if got := s.Document().ProxyGroups[0].Proxies; !equalStrings(got, []string{"one", "three"}) {
		t.Errorf("members = %v, want [one three]", got)
	}

	if err := s.RemoveMember("Select", 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("out of range error = %v, want ErrIndexOutOfRange", err)
	}
	if err := s.RemoveMember("missing", 0); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("missing group error = %v, want ErrGroupNotFound", err)
	}
}

func TestMoveMemberReorders(t *testing.T) {
	tests := []struct {
		name string
		from int
		to   int
		want []string
	}{
		{name: "forward", from: 0, to: 2, want: []string{"two", "three", "one"}},
		{name: "backward", from: 2, to: 0, want: []string{"three", "one", "two"}},
		{name: "same position", from: 1, to: 1, want: []string{"one", "two", "three"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openSession(t, `proxy-groups:
  - name: Select
    type: select
    proxies: [one, two, three]
`)
			if err := s.MoveMember("Select", tt.from, tt.to); err != nil {
				t.Fatalf("MoveMember(%d, %d) failed: %v", tt.from, tt.to, err)
			}
			if got := s.Document().ProxyGroups[0].Proxies; !equalStrings(got, tt.want) {
				t.Errorf("members after move = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoveGroupReorders(t *testing.T) {
	s := openSession(t, `proxy-groups:
  - {name: one, type: select, proxies: [DIRECT]}
  - {name: two, type: select, proxies: [DIRECT]}
  - {name: three, type: select, proxies: [DIRECT]}
`)
	if err := s.MoveGroup(2, 0); err != nil {
		t.Fatalf("MoveGroup failed: %v", err)
	}
	if got := s.Document().GroupNames(); !equalStrings(got, []string{"three", "one", "two"}) {
		t.Errorf("group order = %v, want [three one two]", got)
	}
}

func TestUnresolvedTargetsEmptyWhenConsistent(t *testing.T) {
	s := openSession(t, editorConfig)
	if got := s.UnresolvedRuleTargets(); len(got) != 0 {
		t.Errorf("unresolved targets = %v, want none", got)
	}
}

func TestReplaceUnresolvedIsAllOrNothing(t *testing.T) {
	s := openSession(t, `proxy-groups:
  - name: Keep
    type: select
    proxies: [DIRECT]
rules:
  - DOMAIN-SUFFIX,one.test,X
  - DOMAIN-SUFFIX,two.test,Y
  - DOMAIN-SUFFIX,three.test,X
  - MATCH,Keep
`)
	if got := s.UnresolvedRuleTargets(); !equalStrings(got, []string{"X", "Y"}) {
		t.Fatalf("unresolved targets = %v, want [X Y]", got)
	}

	n, err := s.ReplaceUnresolved("DIRECT")
	if err != nil {
		t.Fatalf("ReplaceUnresolved failed: %v", err)
	}
	if n != 3 {
		t.Errorf("rewrote %d rules, want 3", n)
	}
	doc := s.Document()
	for i, want := range []string{"DIRECT", "DIRECT", "DIRECT", "Keep"} {
		if doc.Rules[i].Target != want {
			t.Errorf("rule %d target = %q, want %q", i, doc.Rules[i].Target, want)
		}
	}
	if got := s.UnresolvedRuleTargets(); len(got) != 0 {
		t.Errorf("unresolved targets after replacement = %v, want none", got)
	}
}

func TestReplaceUnresolvedRejectsUnknownReplacement(t *testing.T) {
	s := openSession(t, editorConfig)
	if _, err := s.ReplaceUnresolved("nonexistent"); err == nil {
		t.Fatalf("expected error for replacement target that is neither sentinel nor group")
	}
}

func TestAddGroupAndMember(t *testing.T) {
	s := openSession(t, editorConfig)

	if err := s.AddGroup(ProxyGroup{Name: "Media", Type: "select", Proxies: []string{"A"}}); err != nil {
		t.Fatalf("AddGroup failed: %v", err)
	}
	if err := s.AddGroup(ProxyGroup{Name: "A"}); !errors.Is(err, ErrGroupExists) {
		t.Errorf("duplicate AddGroup error = %v, want ErrGroupExists", err)
	}
	if err := s.AddGroup(ProxyGroup{Name: "REJECT"}); !errors.Is(err, ErrGroupExists) {
		t.Errorf("sentinel AddGroup error = %v, want ErrGroupExists", err)
	}

	if err := s.AddMember("Media", "B"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if got := s.Document().ProxyGroups[2].Proxies; !equalStrings(got, []string{"A", "B"}) {
		t.Errorf("members = %v, want [A B]", got)
	}
}

func TestUnresolvedMemberRefs(t *testing.T) {
	s := openSession(t, `proxies:
  - {name: node-1, type: ss, server: x, port: 1}
proxy-groups:
  - name: Select
    type: select
    proxies: [node-1, ghost, DIRECT]
`)
	if got := s.UnresolvedMemberRefs(); !equalStrings(got, []string{"ghost"}) {
		t.Errorf("unresolved members = %v, want [ghost]", got)
	}
}

func TestSessionSaveLifecycle(t *testing.T) {
	s := openSession(t, editorConfig)
	if s.Dirty() {
		t.Fatalf("fresh session must not be dirty")
	}
	if s.BaseRevision() != 1 {
		t.Fatalf("base revision = %d, want 1", s.BaseRevision())
	}

	if err := s.RenameGroup("A", "C"); err != nil {
		t.Fatalf("RenameGroup failed: %v", err)
	}
	if !s.Dirty() {
		t.Fatalf("session should be dirty after an edit")
	}

	if _, err := s.Serialize(); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	s.MarkSaved(2)
	if s.Dirty() || s.BaseRevision() != 2 {
		t.Errorf("after MarkSaved: dirty=%v revision=%d, want clean at revision 2", s.Dirty(), s.BaseRevision())
	}
}
