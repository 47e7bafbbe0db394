package core

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/models"
)

func newSubscriptionServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, models.Subscription) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sub, err := database.CreateSubscription(models.SubscriptionCreateRequest{Name: "airport", URL: srv.URL})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	return srv, sub
}

func TestSyncSubscriptionStoresFullDocument(t *testing.T) {
	initTestDB(t)
	_, sub := newSubscriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Subscription-Userinfo", "upload=10; download=20; total=100; expire=0")
		w.Write([]byte(editorSample))
	})
	m := NewSyncManager(newTestFetcher(t, 0))

	result := m.SyncSubscription(context.Background(), sub)
	if result.Error != "" {
		t.Fatalf("sync failed: %s", result.Error)
	}
	if !result.DocumentSaved || result.NodeCount != 1 {
		t.Errorf("result = %+v, want 1 node and a saved document", result)
	}

	nodes, err := database.GetAllNodes()
	if err != nil {
		t.Fatalf("GetAllNodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Name != "hk-01" {
		t.Fatalf("imported nodes = %+v", nodes)
	}
	if nodes[0].SubscriptionID == nil || *nodes[0].SubscriptionID != sub.ID {
		t.Errorf("node not attributed to subscription %d: %+v", sub.ID, nodes[0])
	}

	files, err := database.GetAllConfigFiles()
	if err != nil {
		t.Fatalf("GetAllConfigFiles: %v", err)
	}
	if len(files) != 1 || files[0].Name != "airport.yaml" {
		t.Fatalf("stored config files = %+v, want airport.yaml", files)
	}

	refreshed, err := database.GetSubscriptionByID(sub.ID)
	if err != nil {
		t.Fatalf("GetSubscriptionByID: %v", err)
	}
	if refreshed.NodeCount != 1 || refreshed.LastError != "" || refreshed.LastSyncAt == nil {
		t.Errorf("subscription sync state = %+v", refreshed)
	}
	if refreshed.Upload != 10 || refreshed.Download != 20 || refreshed.Total != 100 {
		t.Errorf("traffic counters = %d/%d/%d, want 10/20/100",
			refreshed.Upload, refreshed.Download, refreshed.Total)
	}
	if refreshed.ExpireAt != nil {
		t.Errorf("expire = %v, want nil for a zero expire header", refreshed.ExpireAt)
	}
}

func TestSyncSubscriptionParsesBase64LinkList(t *testing.T) {
	initTestDB(t)
	links := "trojan://pw@a.example.com:443#A\ntrojan://pw@b.example.com:443#B"
	payload := base64.StdEncoding.EncodeToString([]byte(links))
	_, sub := newSubscriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})
	m := NewSyncManager(newTestFetcher(t, 0))

	result := m.SyncSubscription(context.Background(), sub)
	if result.Error != "" {
		t.Fatalf("sync failed: %s", result.Error)
	}
	if result.DocumentSaved {
		t.Errorf("link list sync claimed a saved document")
	}
	if result.NodeCount != 2 {
		t.Errorf("node count = %d, want 2", result.NodeCount)
	}

	files, err := database.GetAllConfigFiles()
	if err != nil {
		t.Fatalf("GetAllConfigFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("link list sync stored %d config files", len(files))
	}
}

func TestSyncSubscriptionRecordsFailure(t *testing.T) {
	initTestDB(t)
	_, sub := newSubscriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	m := NewSyncManager(newTestFetcher(t, 0))

	result := m.SyncSubscription(context.Background(), sub)
	if result.Error == "" {
		t.Fatalf("sync against a 503 upstream reported success: %+v", result)
	}

	refreshed, err := database.GetSubscriptionByID(sub.ID)
	if err != nil {
		t.Fatalf("GetSubscriptionByID: %v", err)
	}
	if refreshed.LastError == "" || !strings.HasPrefix(refreshed.LastStatus, "sync failed") {
		t.Errorf("recorded sync state = status %q, error %q", refreshed.LastStatus, refreshed.LastError)
	}
}

func TestSyncAllSkipsDisabledSubscriptions(t *testing.T) {
	initTestDB(t)
	_, sub := newSubscriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(editorSample))
	})
	disabled := false
	if _, err := database.CreateSubscription(models.SubscriptionCreateRequest{
		Name: "off", URL: "https://unreachable.example.com/sub", Enabled: &disabled,
	}); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	m := NewSyncManager(newTestFetcher(t, 0))

	results, err := m.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if len(results) != 1 || results[0].SubscriptionID != sub.ID {
		t.Errorf("SyncAll results = %+v, want only the enabled subscription", results)
	}
}

func TestPreviewDoesNotTouchStorage(t *testing.T) {
	initTestDB(t)
	doc := `proxies:
  - name: hk-01
    type: ss
    server: hk.example.com
    port: 8388
proxy-groups:
  - name: Auto
    type: url-test
    proxies: [hk-01]
rules:
  - DOMAIN-SUFFIX,netflix.com,Media
  - MATCH,Auto
`
	_, sub := newSubscriptionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write([]byte(doc))
	})
	m := NewSyncManager(newTestFetcher(t, 0))

	preview, err := m.Preview(context.Background(), sub)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !preview.IsDocument {
		t.Fatalf("preview = %+v, want a document classification", preview)
	}
	if preview.ProxyCount != 1 || preview.GroupCount != 1 || preview.RuleCount != 2 {
		t.Errorf("counts = %d/%d/%d, want 1/1/2", preview.ProxyCount, preview.GroupCount, preview.RuleCount)
	}
	if len(preview.Unresolved) != 1 || preview.Unresolved[0] != "Media" {
		t.Errorf("unresolved = %v, want [Media]", preview.Unresolved)
	}
	if len(preview.NodeNames) != 1 || preview.NodeNames[0] != "hk-01" {
		t.Errorf("node names = %v", preview.NodeNames)
	}

	nodes, err := database.GetAllNodes()
	if err != nil {
		t.Fatalf("GetAllNodes: %v", err)
	}
	files, err := database.GetAllConfigFiles()
	if err != nil {
		t.Fatalf("GetAllConfigFiles: %v", err)
	}
	if len(nodes) != 0 || len(files) != 0 {
		t.Errorf("preview wrote to storage: %d nodes, %d files", len(nodes), len(files))
	}
}
