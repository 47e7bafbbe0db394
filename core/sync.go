package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/clash"
	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/metrics"
	"github.com/iluobei/miaomiaowu-sub001/models"

	"gopkg.in/yaml.v3"
)

// SyncManager pulls subscription upstreams, refreshes their node sets and
// stores full configuration documents when the upstream serves one.
type SyncManager struct {
	fetcher *Fetcher
}

func NewSyncManager(fetcher *Fetcher) *SyncManager {
	return &SyncManager{fetcher: fetcher}
}

// SyncSubscription performs one sync pass for a single subscription and
// records the outcome on its row.
func (m *SyncManager) SyncSubscription(ctx context.Context, sub models.Subscription) models.SyncResult {
	result := models.SyncResult{SubscriptionID: sub.ID}

	fetched, err := m.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		return m.recordFailure(sub, result, err)
	}

	var nodes []models.Node
	documentSaved := false

	// An upstream either serves a full Clash document or a share link list.
	if doc, parseErr := clash.Parse(fetched.Body); parseErr == nil && (len(doc.Proxies) > 0 || len(doc.ProxyGroups) > 0) {
		nodes = nodesFromDocument(doc)
		docName := sub.Name + ".yaml"
		if _, err := database.UpsertSubscriptionDocument(sub.ID, docName, string(fetched.Body)); err != nil {
			return m.recordFailure(sub, result, fmt.Errorf("storing fetched document: %w", err))
		}
		documentSaved = true
		logger.Info("Subscription '%s' served a full document, stored as '%s'", sub.Name, docName)
	} else {
		text := string(fetched.Body)
		if decoded := tryDecodeBase64(text); decoded != "" {
			text = decoded
		}
		var linkErrors []string
		nodes, linkErrors = ParseShareLinks(text)
		for _, le := range linkErrors {
			logger.Debug("Subscription '%s' link skipped: %s", sub.Name, le)
		}
	}

	if len(nodes) == 0 {
		return m.recordFailure(sub, result, fmt.Errorf("subscription contains no nodes"))
	}

	inserted, err := database.ReplaceSubscriptionNodes(sub.ID, nodes)
	if err != nil {
		return m.recordFailure(sub, result, err)
	}

	var upload, download, total int64
	var expireAt *time.Time
	if fetched.UserInfo != nil {
		upload = fetched.UserInfo.Upload
		download = fetched.UserInfo.Download
		total = fetched.UserInfo.Total
		expireAt = fetched.UserInfo.ExpireAt
	}

	status := fmt.Sprintf("ok (%d nodes)", inserted)
	if err := database.UpdateSubscriptionSyncState(sub.ID, status, "", inserted, upload, download, total, expireAt); err != nil {
		logger.Error("Failed to record sync state for subscription %d: %v", sub.ID, err)
	}

	metrics.CountSyncRun("ok")
	result.Status = status
	result.NodeCount = inserted
	result.DocumentSaved = documentSaved
	logger.Info("Synced subscription '%s': %s", sub.Name, status)
	return result
}

func (m *SyncManager) recordFailure(sub models.Subscription, result models.SyncResult, cause error) models.SyncResult {
	status := fmt.Sprintf("sync failed: %v", cause)
	if err := database.UpdateSubscriptionSyncState(sub.ID, status, cause.Error(), sub.NodeCount, sub.Upload, sub.Download, sub.Total, sub.ExpireAt); err != nil {
		logger.Error("Failed to record sync failure for subscription %d: %v", sub.ID, err)
	}
	metrics.CountSyncRun("error")
	result.Status = status
	result.Error = cause.Error()
	result.NodeCount = sub.NodeCount
	logger.Error("Sync failed for subscription '%s': %v", sub.Name, cause)
	return result
}

// Preview fetches a subscription and summarizes what a sync would import,
// without touching storage.
func (m *SyncManager) Preview(ctx context.Context, sub models.Subscription) (models.SubscriptionPreview, error) {
	fetched, err := m.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		return models.SubscriptionPreview{}, err
	}

	preview := models.SubscriptionPreview{
		ContentType: fetched.ContentType,
		Bytes:       len(fetched.Body),
	}
	if fetched.UserInfo != nil {
		preview.Upload = fetched.UserInfo.Upload
		preview.Download = fetched.UserInfo.Download
		preview.Total = fetched.UserInfo.Total
		preview.ExpireAt = fetched.UserInfo.ExpireAt
	}

	if doc, parseErr := clash.Parse(fetched.Body); parseErr == nil && (len(doc.Proxies) > 0 || len(doc.ProxyGroups) > 0) {
		preview.IsDocument = true
		preview.ProxyCount = len(doc.Proxies)
		preview.GroupCount = len(doc.ProxyGroups)
		preview.RuleCount = len(doc.Rules)
		preview.Unresolved = doc.UnresolvedRuleTargets()
		preview.NodeNames = capNames(doc.NodeNames())
		return preview, nil
	}

	text := string(fetched.Body)
	if decoded := tryDecodeBase64(text); decoded != "" {
		text = decoded
	}
	nodes, _ := ParseShareLinks(text)
	preview.ProxyCount = len(nodes)
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	preview.NodeNames = capNames(names)
	return preview, nil
}

// capNames bounds the node name list a preview carries.
func capNames(names []string) []string {
	const max = 50
	if len(names) > max {
		return names[:max]
	}
	return names
}

// SyncDue syncs every enabled subscription whose interval has elapsed.
func (m *SyncManager) SyncDue(ctx context.Context) {
	due, err := database.ListDueSubscriptions(time.Now().UTC())
	if err != nil {
		logger.Error("Failed to list due subscriptions: %v", err)
		return
	}
	for _, sub := range due {
		if ctx.Err() != nil {
			return
		}
		m.SyncSubscription(ctx, sub)
	}
}

// SyncAll syncs every enabled subscription regardless of schedule and returns
// the per-subscription results.
func (m *SyncManager) SyncAll(ctx context.Context) ([]models.SyncResult, error) {
	subs, _, err := database.GetSubscriptionsPaginated(models.SubscriptionFilters{Limit: 10000, EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions for sync: %w", err)
	}
	results := make([]models.SyncResult, 0, len(subs))
	for _, sub := range subs {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, m.SyncSubscription(ctx, sub))
	}
	return results, nil
}

// RunScheduler wakes up on the given interval and syncs whatever is due.
// It returns when the context is canceled.
func (m *SyncManager) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Info("Subscription sync scheduler running every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Subscription sync scheduler stopping.")
			return
		case <-ticker.C:
			m.SyncDue(ctx)
		}
	}
}

// nodesFromDocument lifts the proxies section of a full document into node
// rows, keeping each entry's complete YAML so nothing is lost.
func nodesFromDocument(doc *clash.Document) []models.Node {
	nodes := make([]models.Node, 0, len(doc.Proxies))
	for _, p := range doc.Proxies {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Server) == "" {
			continue
		}
		entry := map[string]any{
			"name":   p.Name,
			"type":   p.Type,
			"server": p.Server,
			"port":   p.Port,
		}
		for k, v := range p.Extra {
			entry[k] = v
		}
		raw, err := yaml.Marshal(entry)
		if err != nil {
			raw = nil
		}
		nodes = append(nodes, models.Node{
			Name:      p.Name,
			Protocol:  p.Type,
			Server:    p.Server,
			Port:      p.Port,
			RawConfig: string(raw),
		})
	}
	return nodes
}

// tryDecodeBase64 attempts to decode a whole-body base64 subscription,
// returning "" unless the result looks like a link list.
func tryDecodeBase64(raw string) string {
	clean := strings.ReplaceAll(raw, "\n", "")
	clean = strings.ReplaceAll(clean, "\r", "")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return ""
	}
	decoded, err := decodeBase64Flexible(clean)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(decoded)
	if !strings.Contains(text, "://") {
		return ""
	}
	return text
}
