package clash

import (
	"bytes"
	"errors"
	"testing"
)

const sampleConfig = `mixed-port: 7890
allow-lan: false
mode: rule
proxies:
  - name: hk-01
    type: ss
    server: hk.example.com
    port: 8388
    cipher: aes-256-gcm
    password: secret
  - name: jp-01
    type: trojan
    server: jp.example.com
    port: 443
proxy-groups:
  - name: Auto
    type: url-test
    proxies:
      - hk-01
      - jp-01
    url: http://www.gstatic.com/generate_204
    interval: 300
  - name: Select
    type: select
    proxies:
      - Auto
      - hk-01
      - DIRECT
rules:
  - DOMAIN-SUFFIX,google.com,Auto
  - DOMAIN-KEYWORD,github,Select
  - IP-CIDR,127.0.0.0/8,DIRECT,no-resolve
  - MATCH,Select
`

func mustParse(t *testing.T, data string) *Document {
	t.Helper()
	doc, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return doc
}

func TestParseSampleConfig(t *testing.T) {
	doc := mustParse(t, sampleConfig)

	if len(doc.Proxies) != 2 {
		t.Fatalf("got %d proxies, want 2", len(doc.Proxies))
	}
	if doc.Proxies[0].Name != "hk-01" || doc.Proxies[0].Port != 8388 {
		t.Errorf("first proxy = %s:%d, want hk-01:8388", doc.Proxies[0].Name, doc.Proxies[0].Port)
	}
	if cipher, ok := doc.Proxies[0].Extra["cipher"]; !ok || cipher != "aes-256-gcm" {
		t.Errorf("proxy extension field cipher = %v, want aes-256-gcm", cipher)
	}

	if len(doc.ProxyGroups) != 2 {
		t.Fatalf("got %d groups, want 2", len(doc.ProxyGroups))
	}
	auto := doc.ProxyGroups[0]
	if auto.Name != "Auto" || auto.Type != "url-test" {
		t.Errorf("first group = %s/%s, want Auto/url-test", auto.Name, auto.Type)
	}
	if url, ok := auto.Extra["url"]; !ok || url != "http://www.gstatic.com/generate_204" {
		t.Errorf("group extension field url = %v", url)
	}

	if len(doc.Rules) != 4 {
		t.Fatalf("got %d rules, want 4", len(doc.Rules))
	}
	if doc.Rules[2].Target != "DIRECT" || len(doc.Rules[2].Params) != 1 {
		t.Errorf("third rule = %+v, want DIRECT target with no-resolve param", doc.Rules[2])
	}
	if doc.Rules[3].Type != "MATCH" || doc.Rules[3].Target != "Select" {
		t.Errorf("final rule = %s,%s, want MATCH,Select", doc.Rules[3].Type, doc.Rules[3].Target)
	}

	if port, ok := doc.Extra["mixed-port"]; !ok || port != 7890 {
		t.Errorf("top-level extension mixed-port = %v, want 7890", port)
	}
}

func TestRoundTripIsSemanticallyIdempotent(t *testing.T) {
	doc := mustParse(t, sampleConfig)
	out, err := doc.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	again := mustParse(t, string(out))

	if got, want := again.GroupNames(), doc.GroupNames(); !equalStrings(got, want) {
		t.Errorf("group names after round trip = %v, want %v", got, want)
	}
	for i := range doc.ProxyGroups {
		if !equalStrings(again.ProxyGroups[i].Proxies, doc.ProxyGroups[i].Proxies) {
			t.Errorf("group %q members after round trip = %v, want %v",
				doc.ProxyGroups[i].Name, again.ProxyGroups[i].Proxies, doc.ProxyGroups[i].Proxies)
		}
	}
	if len(again.Rules) != len(doc.Rules) {
		t.Fatalf("rule count after round trip = %d, want %d", len(again.Rules), len(doc.Rules))
	}
	for i := range doc.Rules {
		if again.Rules[i].String() != doc.Rules[i].String() {
			t.Errorf("rule %d after round trip = %q, want %q", i, again.Rules[i].String(), doc.Rules[i].String())
		}
	}
	if again.Extra["mixed-port"] != doc.Extra["mixed-port"] {
		t.Errorf("top-level extension lost in round trip")
	}

	// A second serialization of the same document is byte-identical.
	out2, err := doc.Serialize()
	if err != nil {
		t.Fatalf("second Serialize failed: %v", err)
	}
	if !bytes.Equal(out, out2) {
		t.Errorf("repeated serialization differs:\n%s\n---\n%s", out, out2)
	}
}

func TestParseMappingRule(t *testing.T) {
	doc := mustParse(t, `proxy-groups:
  - name: Media
    type: select
    proxies: [DIRECT]
rules:
  - {type: DOMAIN-KEYWORD, value: netflix, group: Media}
  - MATCH,DIRECT
`)
	r := doc.Rules[0]
	if !r.Structured() {
		t.Fatalf("expected mapping rule to be structured")
	}
	if r.Target != "Media" || r.Type != "DOMAIN-KEYWORD" || r.Payload != "netflix" {
		t.Errorf("mapping rule = %s/%s/%s, want DOMAIN-KEYWORD/netflix/Media", r.Type, r.Payload, r.Target)
	}

	out, err := doc.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	again := mustParse(t, string(out))
	if !again.Rules[0].Structured() {
		t.Errorf("mapping rule lost its encoding in round trip:\n%s", out)
	}
	if again.Rules[0].Target != "Media" {
		t.Errorf("mapping rule target after round trip = %q, want Media", again.Rules[0].Target)
	}
}

func TestParseRejectsMalformedRules(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "single segment line", data: "rules:\n  - MATCH\n"},
		{name: "mapping without reference", data: "rules:\n  - {type: DOMAIN, value: x}\n"},
		{name: "numeric rule entry", data: "rules:\n  - 12345\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatalf("Parse accepted malformed document")
			}
			var ruleErr *RuleError
			if !errors.As(err, &ruleErr) {
				t.Fatalf("Parse error %T (%v), want *RuleError", err, err)
			}
		})
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("proxy-groups:\n  - name: [unclosed")); err == nil {
		t.Fatalf("Parse accepted invalid YAML")
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
