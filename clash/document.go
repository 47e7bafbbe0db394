// Package clash models Clash/Mihomo configuration documents and keeps
// proxy groups and rules mutually consistent while they are edited.
package clash

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ProxyNode is one entry of the top-level proxies sequence. Only the fields
// the panel needs are typed; everything else (cipher, password, plugin
// options, ...) rides along opaquely in Extra.
type ProxyNode struct {
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`
	Server string         `yaml:"server,omitempty"`
	Port   int            `yaml:"port,omitempty"`
	Extra  map[string]any `yaml:",inline"`
}

// ProxyGroup is a named, ordered collection of node/group references.
// Passthrough fields such as url, interval, tolerance or icon are preserved
// in Extra without being interpreted.
type ProxyGroup struct {
	Name    string         `yaml:"name"`
	Type    string         `yaml:"type"`
	Proxies []string       `yaml:"proxies,omitempty"`
	Extra   map[string]any `yaml:",inline"`
}

// Document is a parsed configuration file. Unrecognized top-level keys
// (mixed-port, dns, external-controller, ...) are carried in Extra so that
// editing groups and rules never drops unrelated settings.
type Document struct {
	Proxies     []ProxyNode    `yaml:"proxies,omitempty"`
	ProxyGroups []ProxyGroup   `yaml:"proxy-groups,omitempty"`
	Rules       []Rule         `yaml:"rules,omitempty"`
	Extra       map[string]any `yaml:",inline"`
}

// Parse deserializes a configuration document. A failure here is a blocking
// error for the caller; no partially parsed document is returned.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config document: %w", err)
	}
	return &doc, nil
}

// Serialize renders the document back to YAML with 2-space indentation.
// Scalar rules stay scalar and mapping rules stay mappings; map key order
// follows the serializer, not the source text.
func (d *Document) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		enc.Close()
		return nil, fmt.Errorf("serialize config document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("serialize config document: %w", err)
	}
	return buf.Bytes(), nil
}

// GroupIndex returns the position of the named group, or -1.
func (d *Document) GroupIndex(name string) int {
	for i := range d.ProxyGroups {
		if d.ProxyGroups[i].Name == name {
			return i
		}
	}
	return -1
}

// HasGroup reports whether a group with the given name exists.
func (d *Document) HasGroup(name string) bool {
	return d.GroupIndex(name) >= 0
}

// NodeNames returns the names of all declared proxy nodes, in order.
func (d *Document) NodeNames() []string {
	names := make([]string, 0, len(d.Proxies))
	for i := range d.Proxies {
		names = append(names, d.Proxies[i].Name)
	}
	return names
}

// GroupNames returns the names of all proxy groups, in order.
func (d *Document) GroupNames() []string {
	names := make([]string, 0, len(d.ProxyGroups))
	for i := range d.ProxyGroups {
		names = append(names, d.ProxyGroups[i].Name)
	}
	return names
}
