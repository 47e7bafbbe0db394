package core

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/logger"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/proxy"
)

// SubscriptionUserInfo holds the traffic counters an upstream reports through
// the subscription-userinfo response header. All byte counts are totals.
type SubscriptionUserInfo struct {
	Upload   int64
	Download int64
	Total    int64
	ExpireAt *time.Time
}

// FetchResult is one downloaded subscription payload.
type FetchResult struct {
	Body        []byte
	ContentType string
	UserInfo    *SubscriptionUserInfo // nil when the upstream sent no counters
}

// Fetcher downloads subscription payloads with the User-Agent most airports
// expect and an optional egress proxy for reaching blocked upstreams.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// NewFetcher builds a fetcher. egressProxy may be empty, an http(s):// URL or
// a socks5:// URL.
func NewFetcher(userAgent string, timeout time.Duration, maxBodyBytes int64, egressProxy string) (*Fetcher, error) {
	transport, err := buildTransport(egressProxy)
	if err != nil {
		return nil, fmt.Errorf("building fetch transport: %w", err)
	}
	if userAgent == "" {
		userAgent = "clash-verge/v1.6.6"
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 16 << 20
	}
	return &Fetcher{
		client:    &http.Client{Transport: transport, Timeout: timeout},
		userAgent: userAgent,
		maxBody:   maxBodyBytes,
	}, nil
}

func buildTransport(egressProxy string) (*http.Transport, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errors.New("default transport type assertion failed")
	}
	transport := base.Clone()
	transport.Proxy = nil
	// Responses are decompressed by hand so the Content-Encoding switch below
	// sees the real header.
	transport.DisableCompression = true

	if strings.TrimSpace(egressProxy) == "" {
		return transport, nil
	}

	proxyURL, err := url.Parse(egressProxy)
	if err != nil {
		return nil, fmt.Errorf("parsing egress proxy url: %w", err)
	}
	switch strings.ToLower(proxyURL.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
		return transport, nil
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("building socks5 dialer: %w", err)
		}
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported egress proxy scheme: %s", proxyURL.Scheme)
	}
}

// Fetch downloads one subscription URL, decompressing the body and parsing
// the subscription-userinfo header when present.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("empty subscription url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating subscription request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching subscription: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("subscription upstream returned status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, f.maxBody+1)
	var body []byte
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "br":
		body, err = io.ReadAll(brotli.NewReader(limited))
	case "gzip":
		var gzReader *gzip.Reader
		gzReader, err = gzip.NewReader(limited)
		if err == nil {
			body, err = io.ReadAll(gzReader)
			gzReader.Close()
		}
	default:
		body, err = io.ReadAll(limited)
	}
	if err != nil {
		return nil, fmt.Errorf("reading subscription body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("subscription body exceeds %d bytes", f.maxBody)
	}

	result := &FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if header := resp.Header.Get("subscription-userinfo"); header != "" {
		result.UserInfo = parseUserInfo(header)
	}
	logger.Info("Fetched subscription payload: %d bytes, content type '%s'", len(body), result.ContentType)
	return result, nil
}

// parseUserInfo reads the semicolon-delimited counter list airports send, e.g.
// "upload=455727941; download=6174315083; total=1073741824000; expire=1862150400".
func parseUserInfo(header string) *SubscriptionUserInfo {
	info := &SubscriptionUserInfo{}
	seen := false
	for _, part := range strings.Split(header, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		value, err := strconv.ParseInt(strings.TrimSpace(kv[1]), 10, 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "upload":
			info.Upload = value
			seen = true
		case "download":
			info.Download = value
			seen = true
		case "total":
			info.Total = value
			seen = true
		case "expire":
			if value > 0 {
				t := time.Unix(value, 0).UTC()
				info.ExpireAt = &t
			}
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return info
}
