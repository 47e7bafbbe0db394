package core

import (
	"encoding/base64"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func proxyEntryOf(t *testing.T, rawConfig string) map[string]any {
	t.Helper()
	entry := map[string]any{}
	if err := yaml.Unmarshal([]byte(rawConfig), &entry); err != nil {
		t.Fatalf("stored node config is not YAML: %v\n%s", err, rawConfig)
	}
	return entry
}

func TestParseSSLinkSIP002(t *testing.T) {
	auth := base64.URLEncoding.EncodeToString([]byte("aes-256-gcm:pass123"))
	link := "ss://" + auth + "@hk.example.com:8388#HK%2001"

	node, err := ParseShareLink(link)
	if err != nil {
		t.Fatalf("ParseShareLink failed: %v", err)
	}
	if node.Name != "HK 01" || node.Protocol != "ss" || node.Server != "hk.example.com" || node.Port != 8388 {
		t.Errorf("node = %s/%s %s:%d", node.Protocol, node.Name, node.Server, node.Port)
	}
	entry := proxyEntryOf(t, node.RawConfig)
	if entry["cipher"] != "aes-256-gcm" || entry["password"] != "pass123" {
		t.Errorf("stored config = %v", entry)
	}
}

func TestParseSSLinkFullyEncoded(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("aes-128-gcm:secret@jp.example.com:443"))
	node, err := ParseShareLink("ss://" + payload)
	if err != nil {
		t.Fatalf("ParseShareLink failed: %v", err)
	}
	if node.Server != "jp.example.com" || node.Port != 443 {
		t.Errorf("address = %s:%d, want jp.example.com:443", node.Server, node.Port)
	}
	if node.Name != "jp.example.com:443" {
		t.Errorf("unnamed node fell back to %q, want host:port", node.Name)
	}
}

func TestParseVMessLink(t *testing.T) {
	// Port is a JSON string here, which is how most airports emit it.
	payload := base64.StdEncoding.EncodeToString([]byte(`{
		"v": "2", "ps": "Tokyo 01", "add": "jp.example.com", "port": "443",
		"id": "23ad6b10-8d1a-40f7-8ad0-e3e35cd38297", "aid": "0",
		"net": "ws", "path": "/ray", "tls": "tls"
	}`))

	node, err := ParseShareLink("vmess://" + payload)
	if err != nil {
		t.Fatalf("ParseShareLink failed: %v", err)
	}
	if node.Name != "Tokyo 01" || node.Protocol != "vmess" || node.Port != 443 {
		t.Errorf("node = %s/%s port %d", node.Protocol, node.Name, node.Port)
	}
	entry := proxyEntryOf(t, node.RawConfig)
	if entry["uuid"] != "23ad6b10-8d1a-40f7-8ad0-e3e35cd38297" {
		t.Errorf("uuid = %v", entry["uuid"])
	}
	if entry["network"] != "ws" {
		t.Errorf("network = %v, want ws", entry["network"])
	}
	if entry["tls"] != true {
		t.Errorf("tls flag not carried into the config entry")
	}
	wsOpts, ok := entry["ws-opts"].(map[string]any)
	if !ok || wsOpts["path"] != "/ray" {
		t.Errorf("ws-opts = %v, want path /ray", entry["ws-opts"])
	}
}

func TestParseVMessLinkRejectsIncompletePayload(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{"ps": "broken", "add": "x.example.com"}`))
	if _, err := ParseShareLink("vmess://" + payload); err == nil {
		t.Fatalf("accepted a vmess payload without port or id")
	}
}

func TestParseTrojanLink(t *testing.T) {
	link := "trojan://mypassword@tr.example.com:443?sni=cdn.example.com&allowInsecure=1#TR%20Main"

	node, err := ParseShareLink(link)
	if err != nil {
		t.Fatalf("ParseShareLink failed: %v", err)
	}
	if node.Name != "TR Main" || node.Protocol != "trojan" || node.Server != "tr.example.com" {
		t.Errorf("node = %s/%s at %s", node.Protocol, node.Name, node.Server)
	}
	entry := proxyEntryOf(t, node.RawConfig)
	if entry["password"] != "mypassword" || entry["sni"] != "cdn.example.com" {
		t.Errorf("stored config = %v", entry)
	}
	if entry["skip-cert-verify"] != true {
		t.Errorf("allowInsecure=1 not mapped to skip-cert-verify")
	}
}

func TestParseShareLinkUnsupportedScheme(t *testing.T) {
	if _, err := ParseShareLink("vless://whatever@host:443"); err == nil {
		t.Fatalf("accepted an unsupported scheme")
	}
}

func TestParseShareLinksBatch(t *testing.T) {
	trojan := "trojan://pw@a.example.com:443#A"
	batch := strings.Join([]string{
		"# exported nodes",
		trojan,
		"",
		trojan, // duplicate, dropped silently
		"ss://!!!notbase64!!!",
		"trojan://pw@b.example.com:443#B",
	}, "\n")

	nodes, errs := ParseShareLinks(batch)
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2 (duplicate and comment skipped): %+v", len(nodes), nodes)
	}
	if nodes[0].Name != "A" || nodes[1].Name != "B" {
		t.Errorf("node names = %s, %s", nodes[0].Name, nodes[1].Name)
	}
	if len(errs) != 1 || !strings.Contains(errs[0], "ss://!!!notbase64!!!") {
		t.Errorf("parse errors = %v, want one entry naming the bad line", errs)
	}
}

func TestRenameProxyEntry(t *testing.T) {
	node, err := ParseShareLink("trojan://pw@a.example.com:443?sni=cdn.example.com#Old")
	if err != nil {
		t.Fatalf("ParseShareLink failed: %v", err)
	}

	renamed, err := RenameProxyEntry(node.RawConfig, "New")
	if err != nil {
		t.Fatalf("RenameProxyEntry failed: %v", err)
	}
	entry := proxyEntryOf(t, renamed)
	if entry["name"] != "New" {
		t.Errorf("renamed entry name = %v, want New", entry["name"])
	}
	if entry["sni"] != "cdn.example.com" || entry["password"] != "pw" {
		t.Errorf("rename dropped unrelated keys: %v", entry)
	}

	if out, err := RenameProxyEntry("", "New"); err != nil || out != "" {
		t.Errorf("empty fragment should pass through, got %q, %v", out, err)
	}
	if _, err := RenameProxyEntry("just a scalar", "New"); err == nil {
		t.Errorf("non-mapping fragment accepted")
	}
}
