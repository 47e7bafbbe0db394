package core

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/iluobei/miaomiaowu-sub001/models"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// ParseShareLinks parses a block of share links, one per line, into nodes.
// Unparseable lines are reported but do not fail the batch. Supported
// schemes: ss://, vmess://, trojan://.
func ParseShareLinks(links string) ([]models.Node, []string) {
	var nodes []models.Node
	var parseErrors []string
	seen := make(map[string]struct{})

	for _, line := range splitLinkLines(links) {
		node, err := ParseShareLink(line)
		if err != nil {
			parseErrors = append(parseErrors, fmt.Sprintf("%s: %v", snippetOf(line), err))
			continue
		}
		key := fmt.Sprintf("%s|%s|%d", node.Name, node.Server, node.Port)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		nodes = append(nodes, node)
	}
	return nodes, parseErrors
}

// ParseShareLink parses a single share link into a node.
func ParseShareLink(link string) (models.Node, error) {
	link = strings.TrimSpace(link)
	switch {
	case strings.HasPrefix(link, "ss://"):
		return parseSSLink(link)
	case strings.HasPrefix(link, "vmess://"):
		return parseVMessLink(link)
	case strings.HasPrefix(link, "trojan://"):
		return parseTrojanLink(link)
	default:
		return models.Node{}, fmt.Errorf("unsupported share link scheme")
	}
}

// RenameProxyEntry rewrites the name key inside a stored proxies entry so the
// YAML fragment stays in agreement with the node row after a rename. An empty
// fragment is returned unchanged.
func RenameProxyEntry(rawConfig, newName string) (string, error) {
	if strings.TrimSpace(rawConfig) == "" {
		return rawConfig, nil
	}
	var entry map[string]any
	if err := yaml.Unmarshal([]byte(rawConfig), &entry); err != nil {
		return "", fmt.Errorf("parsing stored proxy entry: %w", err)
	}
	entry["name"] = newName
	raw, err := yaml.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("serializing renamed proxy entry: %w", err)
	}
	return string(raw), nil
}

func splitLinkLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(normalized, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// parseSSLink handles both ss://base64(method:password@host:port)#name and
// the plain ss://method:password@host:port#name form.
func parseSSLink(link string) (models.Node, error) {
	var node models.Node
	payload := strings.TrimPrefix(link, "ss://")

	payload, name := splitFragment(payload)
	payload, _ = splitQuery(payload)

	if !strings.Contains(payload, "@") {
		decoded, err := decodeBase64Flexible(payload)
		if err != nil {
			return node, fmt.Errorf("invalid ss base64 payload: %w", err)
		}
		payload = decoded
	}

	atIndex := strings.LastIndex(payload, "@")
	if atIndex == -1 {
		return node, fmt.Errorf("ss link has no credentials part")
	}
	auth := payload[:atIndex]
	// The credentials may themselves be base64 (SIP002 form).
	if !strings.Contains(auth, ":") {
		if decoded, err := decodeBase64Flexible(auth); err == nil {
			auth = decoded
		}
	}
	colonIndex := strings.Index(auth, ":")
	if colonIndex == -1 {
		return node, fmt.Errorf("ss credentials missing cipher separator")
	}
	cipher := auth[:colonIndex]
	password := auth[colonIndex+1:]

	server, port, err := splitHostPort(payload[atIndex+1:])
	if err != nil {
		return node, err
	}

	node.Name = name
	if node.Name == "" {
		node.Name = fmt.Sprintf("%s:%d", server, port)
	}
	node.Protocol = "ss"
	node.Server = server
	node.Port = port
	node.RawConfig = marshalProxyEntry(map[string]any{
		"name":     node.Name,
		"type":     "ss",
		"server":   server,
		"port":     port,
		"cipher":   cipher,
		"password": password,
	})
	return node, nil
}

// parseVMessLink handles the common vmess://base64(json) form.
func parseVMessLink(link string) (models.Node, error) {
	var node models.Node
	payload := strings.TrimPrefix(link, "vmess://")

	decoded, err := decodeBase64Flexible(payload)
	if err != nil {
		return node, fmt.Errorf("invalid vmess base64 payload: %w", err)
	}
	if !gjson.Valid(decoded) {
		return node, fmt.Errorf("vmess payload is not JSON")
	}
	parsed := gjson.Parse(decoded)

	server := parsed.Get("add").String()
	port := int(parsed.Get("port").Int())
	uuid := parsed.Get("id").String()
	if server == "" || port == 0 || uuid == "" {
		return node, fmt.Errorf("vmess payload missing add, port or id")
	}

	node.Name = parsed.Get("ps").String()
	if node.Name == "" {
		node.Name = fmt.Sprintf("%s:%d", server, port)
	}
	node.Protocol = "vmess"
	node.Server = server
	node.Port = port

	entry := map[string]any{
		"name":    node.Name,
		"type":    "vmess",
		"server":  server,
		"port":    port,
		"uuid":    uuid,
		"alterId": int(parsed.Get("aid").Int()),
		"cipher":  "auto",
	}
	if network := parsed.Get("net").String(); network != "" && network != "tcp" {
		entry["network"] = network
		if path := parsed.Get("path").String(); path != "" {
			entry["ws-opts"] = map[string]any{"path": path}
		}
	}
	if parsed.Get("tls").String() == "tls" {
		entry["tls"] = true
	}
	node.RawConfig = marshalProxyEntry(entry)
	return node, nil
}

// parseTrojanLink handles trojan://password@host:port?sni=...#name.
func parseTrojanLink(link string) (models.Node, error) {
	var node models.Node
	payload := strings.TrimPrefix(link, "trojan://")

	payload, name := splitFragment(payload)
	payload, query := splitQuery(payload)

	atIndex := strings.LastIndex(payload, "@")
	if atIndex == -1 {
		return node, fmt.Errorf("trojan link has no password part")
	}
	password := payload[:atIndex]
	server, port, err := splitHostPort(payload[atIndex+1:])
	if err != nil {
		return node, err
	}

	node.Name = name
	if node.Name == "" {
		node.Name = fmt.Sprintf("%s:%d", server, port)
	}
	node.Protocol = "trojan"
	node.Server = server
	node.Port = port

	entry := map[string]any{
		"name":     node.Name,
		"type":     "trojan",
		"server":   server,
		"port":     port,
		"password": password,
	}
	if values, err := url.ParseQuery(query); err == nil {
		if sni := values.Get("sni"); sni != "" {
			entry["sni"] = sni
		}
		if values.Get("allowInsecure") == "1" {
			entry["skip-cert-verify"] = true
		}
	}
	node.RawConfig = marshalProxyEntry(entry)
	return node, nil
}

func splitFragment(payload string) (rest, name string) {
	if idx := strings.Index(payload, "#"); idx != -1 {
		decoded, err := url.QueryUnescape(payload[idx+1:])
		if err != nil {
			decoded = payload[idx+1:]
		}
		return payload[:idx], strings.TrimSpace(decoded)
	}
	return payload, ""
}

func splitQuery(payload string) (rest, query string) {
	if idx := strings.Index(payload, "?"); idx != -1 {
		return payload[:idx], payload[idx+1:]
	}
	return payload, ""
}

func splitHostPort(hostPort string) (string, int, error) {
	lastColon := strings.LastIndex(hostPort, ":")
	if lastColon == -1 {
		return "", 0, fmt.Errorf("share link address %q has no port", hostPort)
	}
	server := hostPort[:lastColon]
	port, err := strconv.Atoi(hostPort[lastColon+1:])
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("share link address %q has an invalid port", hostPort)
	}
	if server == "" {
		return "", 0, fmt.Errorf("share link address %q has no host", hostPort)
	}
	return server, port, nil
}

// decodeBase64Flexible tolerates missing padding and both the standard and
// URL-safe alphabets, which share links mix freely.
func decodeBase64Flexible(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	switch len(payload) % 4 {
	case 2:
		payload += "=="
	case 3:
		payload += "="
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(payload)
		if err != nil {
			return "", err
		}
	}
	return string(decoded), nil
}

func marshalProxyEntry(entry map[string]any) string {
	raw, err := yaml.Marshal(entry)
	if err != nil {
		return ""
	}
	return string(raw)
}

func snippetOf(line string) string {
	if len(line) > 48 {
		return line[:48] + "..."
	}
	return line
}
