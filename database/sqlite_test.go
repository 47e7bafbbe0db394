package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/models"

	"golang.org/x/crypto/bcrypt"
)

func initTestDB(t *testing.T) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := InitDB(dbPath); err != nil {
		t.Fatalf("InitDB(%s): %v", dbPath, err)
	}
	t.Cleanup(func() {
		if DB != nil {
			DB.Close()
		}
	})
}

func TestInitDBSeedsDefaults(t *testing.T) {
	initTestDB(t)

	admin, err := GetUserByUsername("admin")
	if err != nil {
		t.Fatalf("expected seeded admin user: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("admin")); err != nil {
		t.Errorf("seeded admin password hash does not verify against 'admin': %v", err)
	}

	target, err := GetSetting(models.DefaultReplacementTargetKey)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if target != "DIRECT" {
		t.Errorf("default replacement target = %q, want DIRECT", target)
	}
}

func TestEnsureJWTSecret(t *testing.T) {
	initTestDB(t)

	if got, err := EnsureJWTSecret("configured-secret"); err != nil || got != "configured-secret" {
		t.Fatalf("EnsureJWTSecret with configured value = (%q, %v), want configured-secret", got, err)
	}

	generated, err := EnsureJWTSecret("")
	if err != nil {
		t.Fatalf("EnsureJWTSecret: %v", err)
	}
	if len(generated) != 64 {
		t.Errorf("generated secret length = %d, want 64 hex chars", len(generated))
	}

	again, err := EnsureJWTSecret("")
	if err != nil {
		t.Fatalf("EnsureJWTSecret second call: %v", err)
	}
	if again != generated {
		t.Error("EnsureJWTSecret did not return the persisted secret on the second call")
	}
}

func TestConfigFileRevisionGuard(t *testing.T) {
	initTestDB(t)

	cf, err := CreateConfigFile("home.yaml", "rules: []\n", nil)
	if err != nil {
		t.Fatalf("CreateConfigFile: %v", err)
	}
	if cf.Revision != 1 {
		t.Fatalf("new config file revision = %d, want 1", cf.Revision)
	}

	rev, err := UpdateConfigFileContent(cf.ID, "rules:\n  - MATCH,DIRECT\n", 1)
	if err != nil {
		t.Fatalf("UpdateConfigFileContent: %v", err)
	}
	if rev != 2 {
		t.Errorf("revision after update = %d, want 2", rev)
	}

	// A second writer still holding revision 1 must be refused.
	current, err := UpdateConfigFileContent(cf.ID, "rules: []\n", 1)
	if !errors.Is(err, ErrStaleRevision) {
		t.Fatalf("stale update error = %v, want ErrStaleRevision", err)
	}
	if current != 2 {
		t.Errorf("stale update reported current revision %d, want 2", current)
	}

	stored, err := GetConfigFileByID(cf.ID)
	if err != nil {
		t.Fatalf("GetConfigFileByID: %v", err)
	}
	if stored.Content != "rules:\n  - MATCH,DIRECT\n" {
		t.Errorf("stale writer clobbered content: %q", stored.Content)
	}

	rev, err = OverwriteConfigFileContent(cf.ID, "proxies: []\n")
	if err != nil {
		t.Fatalf("OverwriteConfigFileContent: %v", err)
	}
	if rev != 3 {
		t.Errorf("revision after overwrite = %d, want 3", rev)
	}
}

func TestListDueSubscriptions(t *testing.T) {
	initTestDB(t)

	fresh, err := CreateSubscription(models.SubscriptionCreateRequest{Name: "fresh", URL: "https://a.example.com/sub"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	stale, err := CreateSubscription(models.SubscriptionCreateRequest{Name: "stale", URL: "https://b.example.com/sub"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	disabled := false
	if _, err := CreateSubscription(models.SubscriptionCreateRequest{Name: "off", URL: "https://c.example.com/sub", Enabled: &disabled}); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	// fresh synced a minute ago, stale a day ago.
	now := time.Now().UTC()
	if _, err := DB.Exec("UPDATE subscriptions SET last_sync_at = ? WHERE id = ?", now.Add(-time.Minute), fresh.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := DB.Exec("UPDATE subscriptions SET last_sync_at = ? WHERE id = ?", now.Add(-24*time.Hour), stale.ID); err != nil {
		t.Fatal(err)
	}

	due, err := ListDueSubscriptions(now)
	if err != nil {
		t.Fatalf("ListDueSubscriptions: %v", err)
	}
	if len(due) != 1 || due[0].ID != stale.ID {
		ids := make([]int64, 0, len(due))
		for _, s := range due {
			ids = append(ids, s.ID)
		}
		t.Errorf("due subscription IDs = %v, want [%d]", ids, stale.ID)
	}
}

func TestReplaceSubscriptionNodes(t *testing.T) {
	initTestDB(t)

	sub, err := CreateSubscription(models.SubscriptionCreateRequest{Name: "airport", URL: "https://a.example.com/sub"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	first := []models.Node{
		{Name: "HK-01", Protocol: "ss", Server: "hk01.example.com", Port: 8388},
		{Name: "HK-02", Protocol: "ss", Server: "hk02.example.com", Port: 8388},
	}
	if n, err := ReplaceSubscriptionNodes(sub.ID, first); err != nil || n != 2 {
		t.Fatalf("ReplaceSubscriptionNodes first pass = (%d, %v), want 2", n, err)
	}

	second := []models.Node{
		{Name: "JP-01", Protocol: "vmess", Server: "jp01.example.com", Port: 443},
	}
	if n, err := ReplaceSubscriptionNodes(sub.ID, second); err != nil || n != 1 {
		t.Fatalf("ReplaceSubscriptionNodes second pass = (%d, %v), want 1", n, err)
	}

	nodes, err := GetAllNodes()
	if err != nil {
		t.Fatalf("GetAllNodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Name != "JP-01" {
		t.Errorf("nodes after replace = %+v, want only JP-01", nodes)
	}
}
