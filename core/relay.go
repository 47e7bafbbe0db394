package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/metrics"
	"github.com/iluobei/miaomiaowu-sub001/models"

	"github.com/armon/go-socks5"
	"github.com/elazarl/goproxy"
	"golang.org/x/net/proxy"
)

// Relay runs the panel's forwarding listeners: an HTTP proxy and a SOCKS5
// proxy. Every connection is measured and logged to relay_traffic so the
// dashboard can show who moved how much.
type Relay struct {
	httpPort  string
	socksPort string
	egress    string
}

func NewRelay(httpPort, socksPort, egressProxy string) *Relay {
	return &Relay{httpPort: httpPort, socksPort: socksPort, egress: egressProxy}
}

// egressDialer returns the dialer used for upstream connections, honoring the
// configured egress proxy when set. Only socks5 egress works here: relayed
// tunnels need a raw stream dialer, which an http proxy cannot provide.
func (r *Relay) egressDialer() (proxy.Dialer, error) {
	if strings.TrimSpace(r.egress) == "" {
		return proxy.Direct, nil
	}
	proxyURL, err := url.Parse(r.egress)
	if err != nil {
		return nil, fmt.Errorf("parsing relay egress proxy url: %w", err)
	}
	switch strings.ToLower(proxyURL.Scheme) {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("building relay egress dialer: %w", err)
		}
		return dialer, nil
	default:
		return nil, fmt.Errorf("relay egress proxy must be socks5, got scheme: %s", proxyURL.Scheme)
	}
}

// countingConn wraps an upstream connection and records a relay_traffic row
// once when the connection closes. Write is client to target, Read is target
// to client.
type countingConn struct {
	net.Conn
	protocol   string
	clientAddr string
	targetHost string
	started    time.Time
	sent       atomic.Int64
	received   atomic.Int64
	closeOnce  sync.Once
}

func newCountingConn(conn net.Conn, protocol, clientAddr, targetHost string) *countingConn {
	return &countingConn{
		Conn:       conn,
		protocol:   protocol,
		clientAddr: clientAddr,
		targetHost: targetHost,
		started:    time.Now(),
	}
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.received.Add(int64(n))
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.sent.Add(int64(n))
	return n, err
}

func (c *countingConn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(c.record)
	return err
}

func (c *countingConn) record() {
	sent := c.sent.Load()
	received := c.received.Load()
	metrics.CountRelayConnection(c.protocol, sent, received)
	if database.DB == nil {
		return
	}
	entry := models.RelayTrafficLog{
		Protocol:      c.protocol,
		ClientAddr:    c.clientAddr,
		TargetHost:    c.targetHost,
		BytesSent:     sent,
		BytesReceived: received,
		DurationMs:    time.Since(c.started).Milliseconds(),
		StartedAt:     c.started,
	}
	if err := database.InsertRelayTraffic(entry); err != nil {
		logger.RelayError("Failed to log relay connection to %s: %v", c.targetHost, err)
	}
}

// Run starts both listeners and blocks until the context is canceled or a
// listener fails.
func (r *Relay) Run(ctx context.Context) error {
	dialer, err := r.egressDialer()
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)

	httpSrv, err := r.startHTTP(dialer, errCh)
	if err != nil {
		return err
	}
	socksLn, err := r.startSOCKS(ctx, dialer, errCh)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
		return err
	}

	select {
	case <-ctx.Done():
		logger.RelayInfo("Relay shutting down.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
		socksLn.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (r *Relay) startHTTP(dialer proxy.Dialer, errCh chan<- error) (*http.Server, error) {
	proxySrv := goproxy.NewProxyHttpServer()
	proxySrv.Logger = log.New(io.Discard, "", 0)

	// CONNECT tunnels go through a counted upstream connection.
	proxySrv.ConnectDial = func(network, addr string) (net.Conn, error) {
		conn, err := dialer.Dial(network, addr)
		if err != nil {
			return nil, err
		}
		return newCountingConn(conn, "http", "", addr), nil
	}

	// Plain HTTP requests are counted from the message sizes instead.
	proxySrv.OnRequest().DoFunc(func(req *http.Request, pctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		pctx.UserData = time.Now()
		return req, nil
	})
	proxySrv.OnResponse().DoFunc(func(resp *http.Response, pctx *goproxy.ProxyCtx) *http.Response {
		if resp == nil || pctx.Req == nil {
			return resp
		}
		started, ok := pctx.UserData.(time.Time)
		if !ok {
			started = time.Now()
		}
		sent := pctx.Req.ContentLength
		if sent < 0 {
			sent = 0
		}
		received := resp.ContentLength
		if received < 0 {
			received = 0
		}
		metrics.CountRelayConnection("http", sent, received)
		if database.DB != nil {
			entry := models.RelayTrafficLog{
				Protocol:      "http",
				ClientAddr:    pctx.Req.RemoteAddr,
				TargetHost:    pctx.Req.Host,
				BytesSent:     sent,
				BytesReceived: received,
				DurationMs:    time.Since(started).Milliseconds(),
				StartedAt:     started,
			}
			if err := database.InsertRelayTraffic(entry); err != nil {
				logger.RelayError("Failed to log relayed request for %s: %v", pctx.Req.Host, err)
			}
		}
		logger.RelayDebug("HTTP %s %s -> %d", pctx.Req.Method, pctx.Req.Host, resp.StatusCode)
		return resp
	})

	srv := &http.Server{Addr: ":" + r.httpPort, Handler: proxySrv}
	logger.RelayInfo("HTTP relay listening on :%s", r.httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http relay: %w", err)
		}
	}()
	return srv, nil
}

func (r *Relay) startSOCKS(ctx context.Context, dialer proxy.Dialer, errCh chan<- error) (net.Listener, error) {
	conf := &socks5.Config{
		Logger: log.New(io.Discard, "", 0),
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.Dial(network, addr)
			if err != nil {
				return nil, err
			}
			return newCountingConn(conn, "socks5", "", addr), nil
		},
	}
	server, err := socks5.New(conf)
	if err != nil {
		return nil, fmt.Errorf("building socks5 server: %w", err)
	}

	ln, err := net.Listen("tcp", ":"+r.socksPort)
	if err != nil {
		return nil, fmt.Errorf("socks5 relay listen: %w", err)
	}
	logger.RelayInfo("SOCKS5 relay listening on :%s", r.socksPort)
	go func() {
		if err := server.Serve(ln); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("socks5 relay: %w", err)
		}
	}()
	return ln, nil
}
