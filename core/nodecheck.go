package core

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"

	mdns "github.com/miekg/dns"
)

// NodeChecker measures node liveness with a plain TCP dial to the node's
// server port. With a resolver configured, hostnames are resolved through it
// instead of the system resolver, which matters when the system DNS is
// already routed through a proxy.
type NodeChecker struct {
	resolver string // host:port of a DNS server, empty for the system resolver
	timeout  time.Duration
}

func NewNodeChecker(resolver string, timeout time.Duration) *NodeChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NodeChecker{resolver: resolver, timeout: timeout}
}

// resolve looks up the first A record for host via the configured resolver.
func (c *NodeChecker) resolve(host string) (string, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(host), mdns.TypeA)
	client := &mdns.Client{Net: "udp", Timeout: c.timeout}
	resp, _, err := client.Exchange(m, c.resolver)
	if err != nil {
		return "", fmt.Errorf("resolving %s via %s: %w", host, c.resolver, err)
	}
	for _, answer := range resp.Answer {
		if a, ok := answer.(*mdns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", fmt.Errorf("no A record for %s", host)
}

// Check dials one node and reports whether the connection succeeded and how
// long it took. The node row is not touched.
func (c *NodeChecker) Check(ctx context.Context, node models.Node) models.NodeCheckResult {
	result := models.NodeCheckResult{NodeID: node.ID, Name: node.Name}

	host := node.Server
	if net.ParseIP(host) == nil && c.resolver != "" {
		resolved, err := c.resolve(host)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		host = resolved
	}

	dialer := net.Dialer{Timeout: c.timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(node.Port)))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	conn.Close()

	result.Alive = true
	result.LatencyMs = time.Since(start).Milliseconds()
	return result
}

// CheckAndStore checks one node and records the outcome on its row.
func (c *NodeChecker) CheckAndStore(ctx context.Context, node models.Node) models.NodeCheckResult {
	result := c.Check(ctx, node)
	if err := database.UpdateNodeCheckResult(node.ID, result.Alive, result.LatencyMs, time.Now().UTC()); err != nil {
		logger.Error("Failed to store check result for node '%s': %v", node.Name, err)
	}
	return result
}

// CheckAll checks every stored node concurrently and records each outcome.
func (c *NodeChecker) CheckAll(ctx context.Context) ([]models.NodeCheckResult, error) {
	nodes, err := database.GetAllNodes()
	if err != nil {
		return nil, err
	}

	results := make([]models.NodeCheckResult, len(nodes))
	sem := make(chan struct{}, 16)
	var wg sync.WaitGroup
	for idx, node := range nodes {
		wg.Add(1)
		go func(i int, n models.Node) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.CheckAndStore(ctx, n)
		}(idx, node)
	}
	wg.Wait()

	alive := 0
	for _, r := range results {
		if r.Alive {
			alive++
		}
	}
	logger.Info("Checked %d nodes, %d alive", len(results), alive)
	return results, nil
}
