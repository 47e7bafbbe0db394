package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/core"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/models"

	"github.com/go-chi/chi/v5"
)

const sampleDocument = `proxies:
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

// setupPanelAPI wires a database, the core services and the authenticated
// route set the way the server command does, minus the middleware that only
// matters in production.
func setupPanelAPI(t *testing.T) http.Handler {
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

	InitAuth([]byte("test-signing-key"), time.Hour)

	fetcher, err := core.NewFetcher("", 5*time.Second, 0, "")
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	SetServices(core.NewEditorStore(0), core.NewSyncManager(fetcher),
		core.NewProbePoller(0), core.NewNodeChecker("", time.Second))

	router := chi.NewRouter()
	router.Post("/auth/login", LoginHandler)
	router.Group(func(private chi.Router) {
		private.Use(AuthMiddleware)
		RegisterAuthRoutes(private)
		RegisterConfigFileRoutes(private)
		RegisterEditSessionRoutes(private)
		RegisterSubscriptionRoutes(private)
		RegisterNodeRoutes(private)
		RegisterSettingsRoutes(private)
		RegisterBackupRoutes(private)
	})
	return router
}

func loginToken(t *testing.T, api http.Handler) string {
	t.Helper()
	rec := doJSON(t, api, http.MethodPost, "/auth/login", "", models.LoginRequest{Username: "admin", Password: "admin"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("login returned an empty token")
	}
	return resp.Token
}

func doJSON(t *testing.T, api http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestAuthRequiredAndLogin(t *testing.T) {
	api := setupPanelAPI(t)

	if rec := doJSON(t, api, http.MethodGet, "/config-files", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list = %d, want 401", rec.Code)
	}

	rec := doJSON(t, api, http.MethodPost, "/auth/login", "", models.LoginRequest{Username: "admin", Password: "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password login = %d, want 401", rec.Code)
	}

	token := loginToken(t, api)
	rec = doJSON(t, api, http.MethodGet, "/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me = %d: %s", rec.Code, rec.Body.String())
	}
	var me UserInfo
	decodeInto(t, rec, &me)
	if me.Username != "admin" {
		t.Errorf("me = %+v, want the admin account", me)
	}
}

func TestConfigFileLifecycle(t *testing.T) {
	api := setupPanelAPI(t)
	token := loginToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/config-files", token,
		models.ConfigFileCreateRequest{Name: "home.yaml", Content: sampleDocument})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	var created models.ConfigFile
	decodeInto(t, rec, &created)
	if created.ID == 0 || created.Revision != 1 {
		t.Fatalf("created = %+v", created)
	}

	rec = doJSON(t, api, http.MethodPost, "/config-files", token,
		models.ConfigFileCreateRequest{Name: "home.yaml", Content: sampleDocument})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/config-files", token,
		models.ConfigFileCreateRequest{Name: "broken.yaml", Content: "rules:\n  - MATCH\n"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed content create = %d, want 400", rec.Code)
	}

	idPath := "/config-files/" + itoa(created.ID)
	rec = doJSON(t, api, http.MethodPut, idPath, token,
		models.ConfigFileUpdateRequest{Content: "rules:\n  - MATCH,DIRECT\n", Revision: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}
	var updated models.ConfigFile
	decodeInto(t, rec, &updated)
	if updated.Revision != 2 {
		t.Errorf("revision after update = %d, want 2", updated.Revision)
	}

	// A writer still holding revision 1 must get a conflict.
	rec = doJSON(t, api, http.MethodPut, idPath, token,
		models.ConfigFileUpdateRequest{Content: "rules: []\n", Revision: 1})
	if rec.Code != http.StatusConflict {
		t.Errorf("stale update = %d, want 409", rec.Code)
	}

	if rec = doJSON(t, api, http.MethodDelete, idPath, token, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", rec.Code)
	}
	if rec = doJSON(t, api, http.MethodGet, idPath, token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
}

func TestEditSessionFlow(t *testing.T) {
	api := setupPanelAPI(t)
	token := loginToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/config-files", token,
		models.ConfigFileCreateRequest{Name: "home.yaml", Content: sampleDocument})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	var cf models.ConfigFile
	decodeInto(t, rec, &cf)

	rec = doJSON(t, api, http.MethodPost, "/config-files/"+itoa(cf.ID)+"/edit", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session = %d: %s", rec.Code, rec.Body.String())
	}
	var sess models.EditSessionResponse
	decodeInto(t, rec, &sess)
	base := "/edit-sessions/" + sess.SessionID

	rec = doJSON(t, api, http.MethodPost, base+"/rename-group", token,
		models.RenameGroupRequest{From: "Auto", To: "Fast"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename-group = %d: %s", rec.Code, rec.Body.String())
	}
	var state models.EditSessionResponse
	decodeInto(t, rec, &state)
	if !state.Dirty {
		t.Errorf("session not dirty after rename")
	}

	// Renaming onto an existing group name is a conflict.
	rec = doJSON(t, api, http.MethodPost, base+"/rename-group", token,
		models.RenameGroupRequest{From: "Fast", To: "Select"})
	if rec.Code != http.StatusConflict {
		t.Errorf("rename onto existing name = %d, want 409", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, base+"/remove-group", token, map[string]string{"name": "Fast"})
	if rec.Code != http.StatusOK {
		t.Fatalf("remove-group = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, base+"/validate", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate = %d: %s", rec.Code, rec.Body.String())
	}
	var report models.ValidationReport
	decodeInto(t, rec, &report)
	if report.Valid || len(report.UnresolvedRuleTargets) != 1 || report.UnresolvedRuleTargets[0] != "Fast" {
		t.Fatalf("report = %+v, want one dangling target Fast", report)
	}

	rec = doJSON(t, api, http.MethodPost, base+"/replace-unresolved", token,
		models.ReplaceUnresolvedRequest{Replacement: "DIRECT"})
	if rec.Code != http.StatusOK {
		t.Fatalf("replace-unresolved = %d: %s", rec.Code, rec.Body.String())
	}
	var replaced map[string]int
	decodeInto(t, rec, &replaced)
	if replaced["replaced"] != 1 {
		t.Errorf("replaced = %v, want 1", replaced)
	}

	rec = doJSON(t, api, http.MethodPost, base+"/save", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("save = %d: %s", rec.Code, rec.Body.String())
	}
	decodeInto(t, rec, &state)
	if state.BaseRevision != 2 || state.Dirty {
		t.Errorf("session after save = %+v", state)
	}

	stored, err := database.GetConfigFileByID(cf.ID)
	if err != nil {
		t.Fatalf("GetConfigFileByID: %v", err)
	}
	if !strings.Contains(stored.Content, "MATCH,Select") || strings.Contains(stored.Content, "Fast") {
		t.Errorf("stored content after the session flow:\n%s", stored.Content)
	}

	if rec = doJSON(t, api, http.MethodDelete, base, token, nil); rec.Code != http.StatusNoContent {
		t.Errorf("discard = %d, want 204", rec.Code)
	}
	if rec = doJSON(t, api, http.MethodGet, base, token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("describe after discard = %d, want 404", rec.Code)
	}
}

func TestStaleSessionSaveConflict(t *testing.T) {
	api := setupPanelAPI(t)
	token := loginToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/config-files", token,
		models.ConfigFileCreateRequest{Name: "home.yaml", Content: sampleDocument})
	var cf models.ConfigFile
	decodeInto(t, rec, &cf)

	openSession := func() models.EditSessionResponse {
		rec := doJSON(t, api, http.MethodPost, "/config-files/"+itoa(cf.ID)+"/edit", token, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("open session = %d: %s", rec.Code, rec.Body.String())
		}
		var sess models.EditSessionResponse
		decodeInto(t, rec, &sess)
		return sess
	}
	first := openSession()
	second := openSession()

	rec = doJSON(t, api, http.MethodPost, "/edit-sessions/"+first.SessionID+"/add-member", token,
		models.AddMemberRequest{Group: "Select", Member: "hk-01"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add-member = %d: %s", rec.Code, rec.Body.String())
	}
	if rec = doJSON(t, api, http.MethodPost, "/edit-sessions/"+first.SessionID+"/save", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("first save = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/edit-sessions/"+second.SessionID+"/rename-group", token,
		models.RenameGroupRequest{From: "Select", To: "Manual"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename in second session = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodPost, "/edit-sessions/"+second.SessionID+"/save", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale save = %d, want 409: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/edit-sessions/"+second.SessionID+"/save", token,
		models.SaveSessionRequest{Force: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("forced save = %d: %s", rec.Code, rec.Body.String())
	}
	var state models.EditSessionResponse
	decodeInto(t, rec, &state)
	if state.BaseRevision != 3 {
		t.Errorf("revision after forced save = %d, want 3", state.BaseRevision)
	}
}

func TestNodeImportAndList(t *testing.T) {
	api := setupPanelAPI(t)
	token := loginToken(t, api)

	links := "trojan://pw@a.example.com:443#A\ntrojan://pw@b.example.com:443#B\nss://garbage"
	rec := doJSON(t, api, http.MethodPost, "/nodes/import", token, models.NodeImportRequest{Links: links})
	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d: %s", rec.Code, rec.Body.String())
	}
	var result models.NodeImportResult
	decodeInto(t, rec, &result)
	if result.Imported != 2 || result.Skipped != 0 || len(result.Errors) != 1 {
		t.Fatalf("import result = %+v, want 2 imported and 1 error", result)
	}

	// The same batch again is all duplicates.
	rec = doJSON(t, api, http.MethodPost, "/nodes/import", token, models.NodeImportRequest{Links: links})
	decodeInto(t, rec, &result)
	if result.Imported != 0 || result.Skipped != 2 {
		t.Errorf("repeat import result = %+v, want everything skipped", result)
	}

	rec = doJSON(t, api, http.MethodGet, "/nodes?limit=10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list nodes = %d: %s", rec.Code, rec.Body.String())
	}
	var page struct {
		TotalRecords int           `json:"total_records"`
		Records      []models.Node `json:"records"`
	}
	decodeInto(t, rec, &page)
	if page.TotalRecords != 2 || len(page.Records) != 2 {
		t.Fatalf("node list = %+v", page)
	}

	// Renaming rewrites the stored YAML fragment along with the row.
	nodeID := page.Records[0].ID
	newName := "HK-Renamed"
	rec = doJSON(t, api, http.MethodPut, "/nodes/"+itoa(nodeID), token, models.NodeUpdateRequest{Name: &newName})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename node = %d: %s", rec.Code, rec.Body.String())
	}
	var renamed models.Node
	decodeInto(t, rec, &renamed)
	if renamed.Name != newName {
		t.Errorf("renamed node name = %q, want %q", renamed.Name, newName)
	}

	rec = doJSON(t, api, http.MethodGet, "/nodes/"+itoa(nodeID)+"/yaml", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("node yaml = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), newName) {
		t.Errorf("node yaml still carries the old name: %s", rec.Body.String())
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
