package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/metrics"
	"github.com/iluobei/miaomiaowu-sub001/models"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// ProbePoller talks to the external controller API of registered Clash and
// Mihomo instances: REST for version and connections, websocket for the
// traffic stream.
type ProbePoller struct {
	client *http.Client
}

func NewProbePoller(timeout time.Duration) *ProbePoller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProbePoller{client: &http.Client{Timeout: timeout}}
}

func (p *ProbePoller) controllerGet(ctx context.Context, probe models.Probe, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating controller request: %w", err)
	}
	if probe.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+probe.Secret)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("controller rejected the configured secret")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("controller returned status %d for %s", resp.StatusCode, path)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading controller response for %s: %w", path, err)
	}
	return body, nil
}

// Status takes a live snapshot from the controller's /version and
// /connections endpoints.
func (p *ProbePoller) Status(ctx context.Context, probe models.Probe) models.ProbeStatus {
	status := models.ProbeStatus{ProbeID: probe.ID}

	versionBody, err := p.controllerGet(ctx, probe, "/version")
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Version = gjson.GetBytes(versionBody, "version").String()

	connsBody, err := p.controllerGet(ctx, probe, "/connections")
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Reachable = true
	status.ConnectionCount = int(gjson.GetBytes(connsBody, "connections.#").Int())
	status.UploadTotal = gjson.GetBytes(connsBody, "uploadTotal").Int()
	status.DownloadTotal = gjson.GetBytes(connsBody, "downloadTotal").Int()
	return status
}

// Poll takes a snapshot, records the outcome on the probe row and stores one
// traffic sample when the controller is reachable.
func (p *ProbePoller) Poll(ctx context.Context, probe models.Probe) models.ProbeStatus {
	status := p.Status(ctx, probe)
	if status.Error != "" {
		metrics.CountProbePollFailure(probe.Name)
		if err := database.UpdateProbePollResult(probe.ID, "", status.Error, time.Time{}); err != nil {
			logger.Error("Failed to record poll failure for probe '%s': %v", probe.Name, err)
		}
		logger.Debug("Probe '%s' unreachable: %s", probe.Name, status.Error)
		return status
	}

	if err := database.UpdateProbePollResult(probe.ID, status.Version, "", time.Now().UTC()); err != nil {
		logger.Error("Failed to record poll result for probe '%s': %v", probe.Name, err)
	}

	if up, down, err := p.SampleTraffic(ctx, probe); err == nil {
		if err := database.InsertTrafficSample(probe.ID, up, down); err != nil {
			logger.Error("Failed to store traffic sample for probe '%s': %v", probe.Name, err)
		}
	} else {
		logger.Debug("No traffic sample from probe '%s': %v", probe.Name, err)
	}
	return status
}

// trafficURL converts the controller base URL into its websocket endpoint.
func trafficURL(probe models.Probe) (string, error) {
	parsed, err := url.Parse(probe.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing probe base url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported controller scheme %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/traffic"
	if probe.Secret != "" {
		q := parsed.Query()
		q.Set("token", probe.Secret)
		parsed.RawQuery = q.Encode()
	}
	return parsed.String(), nil
}

func (p *ProbePoller) dialTraffic(ctx context.Context, probe models.Probe) (*websocket.Conn, error) {
	wsURL, err := trafficURL(probe)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if probe.Secret != "" {
		header.Set("Authorization", "Bearer "+probe.Secret)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing traffic stream: %w", err)
	}
	return conn, nil
}

// SampleTraffic reads a single up/down frame from the controller's traffic
// stream. The controller emits one frame per second.
func (p *ProbePoller) SampleTraffic(ctx context.Context, probe models.Probe) (int64, int64, error) {
	conn, err := p.dialTraffic(ctx, probe)
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return 0, 0, fmt.Errorf("reading traffic frame: %w", err)
	}
	return gjson.GetBytes(frame, "up").Int(), gjson.GetBytes(frame, "down").Int(), nil
}

// StreamTraffic relays traffic frames to emit until the context ends, the
// stream breaks or emit returns an error.
func (p *ProbePoller) StreamTraffic(ctx context.Context, probe models.Probe, emit func(up, down int64) error) error {
	conn, err := p.dialTraffic(ctx, probe)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading traffic frame: %w", err)
		}
		if err := emit(gjson.GetBytes(frame, "up").Int(), gjson.GetBytes(frame, "down").Int()); err != nil {
			return err
		}
	}
}

// RunScheduler polls every enabled probe on the given interval and prunes
// samples past the retention window. It returns when the context is canceled.
func (p *ProbePoller) RunScheduler(ctx context.Context, interval time.Duration, retention time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger.Info("Probe poller running every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Probe poller stopping.")
			return
		case <-ticker.C:
			probes, err := database.ListEnabledProbes()
			if err != nil {
				logger.Error("Failed to list probes for polling: %v", err)
				continue
			}
			for _, probe := range probes {
				if ctx.Err() != nil {
					return
				}
				p.Poll(ctx, probe)
			}
			if retention > 0 {
				if deleted, err := database.PruneTrafficSamples(time.Now().UTC().Add(-retention)); err != nil {
					logger.Error("Failed to prune traffic samples: %v", err)
				} else if deleted > 0 {
					logger.Debug("Pruned %d traffic samples past retention", deleted)
				}
			}
		}
	}
}
