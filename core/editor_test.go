package core

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/clash"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

const editorSample = `proxies:
  - name: hk-01
    type: ss
    server: hk.example.com
    port: 8388
proxy-groups:
  - name: Auto
    type: url-test
    proxies: [hk-01]
  - name: Select
    type: select
    proxies: [Auto, DIRECT]
rules:
  - DOMAIN-SUFFIX,google.com,Auto
  - MATCH,Select
`

func initTestDB(t *testing.T) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := database.InitDB(dbPath); err != nil {
		t.Fatalf("InitDB(%s): %v", dbPath, err)
	}
	t.Cleanup(func() {
		if database.DB != nil {
			database.DB.Close()
		}
	})
}

func createSampleConfigFile(t *testing.T) models.ConfigFile {
	t.Helper()
	cf, err := database.CreateConfigFile("home.yaml", editorSample, nil)
	if err != nil {
		t.Fatalf("CreateConfigFile: %v", err)
	}
	return cf
}

func TestEditSessionLifecycle(t *testing.T) {
	initTestDB(t)
	cf := createSampleConfigFile(t)
	store := NewEditorStore(0)

	sess, err := store.Open(cf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.SessionID == "" || sess.ConfigFileID != cf.ID || sess.BaseRevision != 1 || sess.Dirty {
		t.Fatalf("fresh session = %+v", sess)
	}

	if err := store.RenameGroup(sess.SessionID, "Auto", "Fast"); err != nil {
		t.Fatalf("RenameGroup: %v", err)
	}

	raw, err := store.Document(sess.SessionID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	doc, err := clash.Parse(raw)
	if err != nil {
		t.Fatalf("session document no longer parses: %v", err)
	}
	if names := doc.GroupNames(); names[0] != "Fast" {
		t.Errorf("group names after rename = %v", names)
	}
	if doc.Rules[0].Target != "Fast" {
		t.Errorf("rule target after rename = %q, want Fast", doc.Rules[0].Target)
	}
	if doc.ProxyGroups[1].Proxies[0] != "Fast" {
		t.Errorf("membership after rename = %v", doc.ProxyGroups[1].Proxies)
	}

	desc, err := store.Describe(sess.SessionID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !desc.Dirty {
		t.Errorf("session not dirty after an edit")
	}

	saved, err := store.Save(sess.SessionID, false)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.BaseRevision != 2 || saved.Dirty {
		t.Errorf("session after save = %+v, want revision 2 and clean", saved)
	}

	stored, err := database.GetConfigFileByID(cf.ID)
	if err != nil {
		t.Fatalf("GetConfigFileByID: %v", err)
	}
	if stored.Revision != 2 {
		t.Errorf("stored revision = %d, want 2", stored.Revision)
	}
	storedDoc, err := clash.Parse([]byte(stored.Content))
	if err != nil {
		t.Fatalf("stored content no longer parses: %v", err)
	}
	if storedDoc.GroupNames()[0] != "Fast" {
		t.Errorf("rename did not reach storage: %v", storedDoc.GroupNames())
	}
}

func TestEditSessionStaleSave(t *testing.T) {
	initTestDB(t)
	cf := createSampleConfigFile(t)
	store := NewEditorStore(0)

	first, err := store.Open(cf)
	if err != nil {
		t.Fatalf("Open first: %v", err)
	}
	second, err := store.Open(cf)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}

	if err := store.AddMember(first.SessionID, "Select", "hk-01"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if _, err := store.Save(first.SessionID, false); err != nil {
		t.Fatalf("Save first: %v", err)
	}

	if err := store.RenameGroup(second.SessionID, "Select", "Manual"); err != nil {
		t.Fatalf("RenameGroup: %v", err)
	}
	_, err = store.Save(second.SessionID, false)
	if !errors.Is(err, database.ErrStaleRevision) {
		t.Fatalf("stale save error = %v, want ErrStaleRevision", err)
	}

	// The refused session stays open, so a forced save can still land.
	forced, err := store.Save(second.SessionID, true)
	if err != nil {
		t.Fatalf("forced Save: %v", err)
	}
	if forced.BaseRevision != 3 {
		t.Errorf("revision after forced save = %d, want 3", forced.BaseRevision)
	}

	stored, err := database.GetConfigFileByID(cf.ID)
	if err != nil {
		t.Fatalf("GetConfigFileByID: %v", err)
	}
	storedDoc, err := clash.Parse([]byte(stored.Content))
	if err != nil {
		t.Fatalf("stored content no longer parses: %v", err)
	}
	found := false
	for _, name := range storedDoc.GroupNames() {
		if name == "Manual" {
			found = true
		}
	}
	if !found {
		t.Errorf("forced save content lost the rename: %v", storedDoc.GroupNames())
	}
}

func TestEditSessionValidateAndReplace(t *testing.T) {
	initTestDB(t)
	cf := createSampleConfigFile(t)
	store := NewEditorStore(0)

	sess, err := store.Open(cf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := store.RemoveGroup(sess.SessionID, "Auto"); err != nil {
		t.Fatalf("RemoveGroup: %v", err)
	}

	report, err := store.Validate(sess.SessionID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if report.Valid {
		t.Fatalf("report claims valid despite a dangling rule target")
	}
	if len(report.UnresolvedRuleTargets) != 1 || report.UnresolvedRuleTargets[0] != "Auto" {
		t.Errorf("unresolved rule targets = %v, want [Auto]", report.UnresolvedRuleTargets)
	}

	if _, err := store.ReplaceUnresolved(sess.SessionID, "NoSuchGroup"); err == nil {
		t.Fatalf("ReplaceUnresolved accepted an unknown replacement target")
	}

	n, err := store.ReplaceUnresolved(sess.SessionID, "DIRECT")
	if err != nil {
		t.Fatalf("ReplaceUnresolved: %v", err)
	}
	if n != 1 {
		t.Errorf("replaced %d rules, want 1", n)
	}

	report, err = store.Validate(sess.SessionID)
	if err != nil {
		t.Fatalf("Validate after replace: %v", err)
	}
	if !report.Valid {
		t.Errorf("report still invalid after replacement: %+v", report)
	}
}

func TestEditSessionDiscardAndExpiry(t *testing.T) {
	initTestDB(t)
	cf := createSampleConfigFile(t)

	store := NewEditorStore(0)
	sess, err := store.Open(cf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Discard(sess.SessionID); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := store.Describe(sess.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Describe after discard = %v, want ErrSessionNotFound", err)
	}
	if err := store.Discard(sess.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Discard = %v, want ErrSessionNotFound", err)
	}

	quick := NewEditorStore(time.Millisecond)
	sess, err = quick.Open(cf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := quick.Describe(sess.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Describe after ttl = %v, want ErrSessionNotFound", err)
	}
}
