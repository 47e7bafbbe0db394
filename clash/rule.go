package clash

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// referenceKeys are the mapping-form keys that may carry a rule's target,
// checked in priority order.
var referenceKeys = []string{"target", "group", "proxy", "ruleset"}

// Rule is one entry of the rules sequence. Two encodings exist in the wild:
// the classic delimited line ("DOMAIN-SUFFIX,example.com,Select") and a
// mapping carrying its reference under target/group/proxy/ruleset. A Rule
// remembers which form it was parsed from and reproduces it on output.
type Rule struct {
	Type    string
	Payload string
	Target  string
	Params  []string

	structured bool
	refKey     string
	extra      map[string]any
}

// NewRule builds a scalar-form rule, mainly for tests and programmatic edits.
func NewRule(ruleType, payload, target string, params ...string) Rule {
	return Rule{Type: ruleType, Payload: payload, Target: target, Params: params}
}

// Structured reports whether the rule was parsed from the mapping form.
func (r *Rule) Structured() bool { return r.structured }

// String renders the scalar line form. For mapping-form rules it renders the
// same display shape from the typed fields.
func (r Rule) String() string {
	segs := make([]string, 0, 3+len(r.Params))
	segs = append(segs, r.Type)
	if r.Payload != "" {
		segs = append(segs, r.Payload)
	}
	segs = append(segs, r.Target)
	segs = append(segs, r.Params...)
	return strings.Join(segs, ",")
}

// parseRuleLine splits a delimited rule line the way the Clash core does:
// two segments are TYPE,TARGET (MATCH and friends), three are
// TYPE,PAYLOAD,TARGET, anything further is trailing params such as
// no-resolve. AND/OR/NOT keep their comma-bearing payload intact by taking
// the last segment as the target.
func parseRuleLine(line string, srcLine int) (Rule, error) {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var r Rule
	r.Type = parts[0]
	if r.Type == "" || len(parts) < 2 {
		return r, &RuleError{Line: srcLine, Text: line, Reason: "format invalid, want TYPE,PAYLOAD,TARGET"}
	}

	switch r.Type {
	case "AND", "OR", "NOT":
		r.Payload = strings.Join(parts[1:len(parts)-1], ",")
		r.Target = parts[len(parts)-1]
	default:
		switch len(parts) {
		case 2:
			r.Target = parts[1]
		case 3:
			r.Payload = parts[1]
			r.Target = parts[2]
		default:
			r.Payload = parts[1]
			r.Target = parts[2]
			r.Params = parts[3:]
		}
	}

	if r.Target == "" {
		return r, &RuleError{Line: srcLine, Text: line, Reason: "empty target reference"}
	}
	return r, nil
}

// UnmarshalYAML accepts both the scalar and the mapping encodings.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := parseRuleLine(value.Value, value.Line)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	case yaml.MappingNode:
		m := map[string]any{}
		if err := value.Decode(&m); err != nil {
			return &RuleError{Line: value.Line, Text: snippet(value.Value), Reason: "invalid rule mapping: " + err.Error()}
		}
		for _, key := range referenceKeys {
			raw, ok := m[key]
			if !ok {
				continue
			}
			s, ok := raw.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return &RuleError{Line: value.Line, Text: key, Reason: "rule reference must be a non-empty string"}
			}
			r.refKey = key
			r.Target = s
			break
		}
		if r.refKey == "" {
			return &RuleError{Line: value.Line, Reason: "rule mapping carries none of target/group/proxy/ruleset"}
		}
		delete(m, r.refKey)
		if s, ok := m["type"].(string); ok {
			r.Type = s
		}
		if s, ok := m["value"].(string); ok {
			r.Payload = s
		}
		r.structured = true
		r.extra = m
		return nil
	default:
		return &RuleError{Line: value.Line, Reason: "rule must be a string or a mapping"}
	}
}

// MarshalYAML reproduces the original encoding. Mapping-form rules emit the
// reference key first and the remaining keys in sorted order.
func (r Rule) MarshalYAML() (interface{}, error) {
	if !r.structured {
		return r.String(), nil
	}

	node := &yaml.Node{Kind: yaml.MappingNode}
	appendPair := func(key string, val any) error {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
		valNode := &yaml.Node{}
		if err := valNode.Encode(val); err != nil {
			return err
		}
		node.Content = append(node.Content, keyNode, valNode)
		return nil
	}

	if err := appendPair(r.refKey, r.Target); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(r.extra))
	for k := range r.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := appendPair(k, r.extra[k]); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func snippet(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
