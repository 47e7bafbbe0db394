package core

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func newTestFetcher(t *testing.T, maxBody int64) *Fetcher {
	t.Helper()
	f, err := NewFetcher("", 5*time.Second, maxBody, "")
	if err != nil {
		t.Fatalf("NewFetcher failed: %v", err)
	}
	return f
}

func TestFetchPlainBody(t *testing.T) {
	var gotUA, gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
		w.Write([]byte("proxies: []\n"))
	}))
	defer srv.Close()

	result, err := newTestFetcher(t, 0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(result.Body) != "proxies: []\n" {
		t.Errorf("body = %q, want the served payload", result.Body)
	}
	if result.ContentType != "text/yaml; charset=utf-8" {
		t.Errorf("content type = %q", result.ContentType)
	}
	if result.UserInfo != nil {
		t.Errorf("user info = %+v, want nil without the header", result.UserInfo)
	}
	if !strings.HasPrefix(gotUA, "clash-verge/") {
		t.Errorf("default user agent = %q, want a clash-verge identity", gotUA)
	}
	if gotEncoding != "gzip, br" {
		t.Errorf("accept-encoding = %q, want gzip, br", gotEncoding)
	}
}

func TestFetchDecompressesGzip(t *testing.T) {
	payload := strings.Repeat("proxies:\n  - name: node\n", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte(payload))
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	result, err := newTestFetcher(t, 0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(result.Body) != payload {
		t.Errorf("got %d bytes after gzip decode, want %d", len(result.Body), len(payload))
	}
}

func TestFetchDecompressesBrotli(t *testing.T) {
	payload := strings.Repeat("rules:\n  - MATCH,DIRECT\n", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		br := brotli.NewWriter(&buf)
		br.Write([]byte(payload))
		br.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	result, err := newTestFetcher(t, 0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(result.Body) != payload {
		t.Errorf("got %d bytes after brotli decode, want %d", len(result.Body), len(payload))
	}
}

func TestFetchParsesUserInfoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Subscription-Userinfo",
			"upload=455727941; download=6174315083; total=1073741824000; expire=1862150400")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	result, err := newTestFetcher(t, 0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	info := result.UserInfo
	if info == nil {
		t.Fatalf("user info missing despite header")
	}
	if info.Upload != 455727941 || info.Download != 6174315083 || info.Total != 1073741824000 {
		t.Errorf("counters = %d/%d/%d", info.Upload, info.Download, info.Total)
	}
	if info.ExpireAt == nil || info.ExpireAt.Unix() != 1862150400 {
		t.Errorf("expire = %v, want unix 1862150400", info.ExpireAt)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, 1024).Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("err = %v, want a body size rejection", err)
	}
}

func TestFetchRejectsUpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, 0).Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v, want a status 404 failure", err)
	}
}

func TestNewFetcherRejectsUnknownProxyScheme(t *testing.T) {
	if _, err := NewFetcher("", time.Second, 0, "ftp://127.0.0.1:2121"); err == nil {
		t.Fatalf("NewFetcher accepted an ftp egress proxy")
	}
}

func TestParseUserInfo(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   *SubscriptionUserInfo
	}{
		{
			name:   "full counter set",
			header: "upload=100; download=200; total=300; expire=1700000000",
			want:   &SubscriptionUserInfo{Upload: 100, Download: 200, Total: 300},
		},
		{
			name:   "spacing and case variants",
			header: "Upload = 5;DOWNLOAD=6 ; total=7",
			want:   &SubscriptionUserInfo{Upload: 5, Download: 6, Total: 7},
		},
		{
			name:   "zero expire means no deadline",
			header: "upload=1; expire=0",
			want:   &SubscriptionUserInfo{Upload: 1},
		},
		{
			name:   "unparseable values skipped",
			header: "upload=abc; download=9",
			want:   &SubscriptionUserInfo{Download: 9},
		},
		{
			name:   "nothing usable",
			header: "who=knows; what",
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseUserInfo(tt.header)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("got nil, want %+v", tt.want)
			}
			if got.Upload != tt.want.Upload || got.Download != tt.want.Download || got.Total != tt.want.Total {
				t.Errorf("counters = %d/%d/%d, want %d/%d/%d",
					got.Upload, got.Download, got.Total, tt.want.Upload, tt.want.Download, tt.want.Total)
			}
			if tt.header == "upload=1; expire=0" && got.ExpireAt != nil {
				t.Errorf("expire = %v, want nil for a zero timestamp", got.ExpireAt)
			}
		})
	}
}
