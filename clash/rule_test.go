package clash

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseRuleLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Rule
	}{
		{
			name: "domain suffix",
			line: "DOMAIN-SUFFIX,google.com,Auto",
			want: Rule{Type: "DOMAIN-SUFFIX", Payload: "google.com", Target: "Auto"},
		},
		{
			name: "match has no payload",
			line: "MATCH,DIRECT",
			want: Rule{Type: "MATCH", Target: "DIRECT"},
		},
		{
			name: "trailing no-resolve param",
			line: "IP-CIDR,127.0.0.0/8,DIRECT,no-resolve",
			want: Rule{Type: "IP-CIDR", Payload: "127.0.0.0/8", Target: "DIRECT", Params: []string{"no-resolve"}},
		},
		{
			name: "logic rule keeps comma payload",
			line: "AND,((DOMAIN,baidu.com),(NETWORK,UDP)),REJECT",
			want: Rule{Type: "AND", Payload: "((DOMAIN,baidu.com),(NETWORK,UDP))", Target: "REJECT"},
		},
		{
			name: "segments are trimmed",
			line: " DOMAIN-KEYWORD , netflix , Media ",
			want: Rule{Type: "DOMAIN-KEYWORD", Payload: "netflix", Target: "Media"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRuleLine(tt.line, 1)
			if err != nil {
				t.Fatalf("parseRuleLine(%q) returned error: %v", tt.line, err)
			}
			if got.Type != tt.want.Type || got.Payload != tt.want.Payload || got.Target != tt.want.Target {
				t.Errorf("parseRuleLine(%q) = {%s %s %s}, want {%s %s %s}",
					tt.line, got.Type, got.Payload, got.Target, tt.want.Type, tt.want.Payload, tt.want.Target)
			}
			if !reflect.DeepEqual(got.Params, tt.want.Params) {
				t.Errorf("parseRuleLine(%q) params = %v, want %v", tt.line, got.Params, tt.want.Params)
			}
		})
	}
}

func TestParseRuleLineErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "empty line", line: ""},
		{name: "single segment", line: "MATCH"},
		{name: "empty target", line: "DOMAIN,example.com,"},
		{name: "empty type", line: ",example.com,Auto"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRuleLine(tt.line, 7)
			if err == nil {
				t.Fatalf("parseRuleLine(%q) expected error, got nil", tt.line)
			}
			var ruleErr *RuleError
			if !errors.As(err, &ruleErr) {
				t.Fatalf("parseRuleLine(%q) error %T, want *RuleError", tt.line, err)
			}
			if ruleErr.Line != 7 {
				t.Errorf("parseRuleLine(%q) error line = %d, want 7", tt.line, ruleErr.Line)
			}
		})
	}
}

func TestRuleString(t *testing.T) {
	tests := []struct {
		rule Rule
		want string
	}{
		{NewRule("DOMAIN-SUFFIX", "google.com", "Auto"), "DOMAIN-SUFFIX,google.com,Auto"},
		{NewRule("MATCH", "", "DIRECT"), "MATCH,DIRECT"},
		{NewRule("IP-CIDR", "10.0.0.0/8", "DIRECT", "no-resolve"), "IP-CIDR,10.0.0.0/8,DIRECT,no-resolve"},
	}
	for _, tt := range tests {
		if got := tt.rule.String(); got != tt.want {
			t.Errorf("Rule.String() = %q, want %q", got, tt.want)
		}
	}
}
