// Package proxy is an HTTP forward proxy that applies the block list to
// top-level navigations. Plain HTTP requests for blocked hosts are
// redirected to the interstitial page. CONNECT tunnels to blocked hosts are
// refused, since nothing can be injected into TLS.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/domain"
)

const (
	connectEstablishedResponse = "HTTP/1.1 200 Connection Established\r\nProxy-Agent: distraction-block\r\n\r\n"
	blockedConnectMessage      = "Blocked by distraction-block"

	// subFrameID stands in for any non-top-level frame.
	subFrameID = 1
)

var dialTargetFunc = func(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 10 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// Hop-by-hop headers, removed in both directions.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Decider is the interception point.
type Decider interface {
	HandleNavigation(ctx context.Context, ev domain.NavigationEvent) (domain.Redirect, bool, error)
	Decide(ctx context.Context, host string) (domain.BlockDecision, error)
}

type Options struct {
	Addr      string
	Decider   Decider
	Transport http.RoundTripper
	Logger    log.Logger
}

type Proxy struct {
	decider   Decider
	transport http.RoundTripper
	logger    log.Logger
	server    *http.Server
}

func New(opts Options) *Proxy {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:          64,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		}
	}
	p := &Proxy{decider: opts.Decider, transport: transport, logger: logger}
	p.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return p
}

// Start serves until Shutdown. A clean shutdown returns nil.
func (p *Proxy) Start() error {
	p.logger.Info(map[string]any{"addr": p.server.Addr}, "Proxy listening")
	if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch strings.ToUpper(r.Method) {
	case http.MethodConnect:
		p.handleConnect(w, r)
	default:
		p.handleHTTP(w, r)
	}
}

func (p *Proxy) handleHTTP(w http.ResponseWriter, r *http.Request) {
	target := targetURL(r)
	if target == nil {
		http.Error(w, "missing target host", http.StatusBadRequest)
		return
	}

	ev := domain.NavigationEvent{
		FrameID: frameID(r.Header),
		URL:     target.String(),
		Kind:    domain.NavigationCommitted,
	}
	redirect, blocked, err := p.decider.HandleNavigation(r.Context(), ev)
	if err != nil {
		http.Error(w, "blocker not ready", http.StatusServiceUnavailable)
		return
	}
	if blocked {
		p.logger.Debug(map[string]any{"client": r.RemoteAddr, "url": ev.URL}, "Redirecting proxied navigation")
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, redirect.URL, http.StatusFound)
		return
	}

	out := r.Clone(r.Context())
	out.URL = target
	out.Host = target.Host
	out.RequestURI = ""
	if r.ContentLength == 0 {
		out.Body = nil
	}
	removeHopHeaders(out.Header)

	resp, err := p.transport.RoundTrip(out)
	if err != nil {
		p.logger.Warn(map[string]any{"url": ev.URL, "error": err}, "Upstream request failed")
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	removeHopHeaders(resp.Header)
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug(map[string]any{"url": ev.URL, "error": err}, "failed to copy response body")
	}
}

func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	addr := r.Host
	if addr == "" && r.URL != nil {
		addr = r.URL.Host
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if host == "" {
		http.Error(w, "missing target host", http.StatusBadRequest)
		return
	}

	d, err := p.decider.Decide(r.Context(), host)
	if err != nil {
		http.Error(w, "blocker not ready", http.StatusServiceUnavailable)
		return
	}
	if d.Blocked {
		p.logger.Debug(map[string]any{"client": r.RemoteAddr, "host": d.Host, "matched": d.MatchedRule}, "Refusing tunnel")
		http.Error(w, blockedConnectMessage, http.StatusForbidden)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, buf, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, "failed to hijack connection", http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()

	upConn, err := dialTargetFunc(r.Context(), addr)
	if err != nil {
		writeHijackedResponse(buf, http.StatusBadGateway, "Failed to connect to target")
		return
	}
	if _, err := clientConn.Write([]byte(connectEstablishedResponse)); err != nil {
		_ = upConn.Close()
		return
	}

	// Bytes the client sent after its CONNECT header may already be buffered.
	if n := buf.Reader.Buffered(); n > 0 {
		pending, _ := buf.Reader.Peek(n)
		if _, err := upConn.Write(pending); err != nil {
			_ = upConn.Close()
			return
		}
	}
	pipeConnections(clientConn, upConn)
}

// targetURL resolves the absolute URL of a proxied request. Origin-form
// requests fall back to the Host header.
func targetURL(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		u := *r.URL
		return &u
	}
	if r.Host == "" {
		return nil
	}
	return &url.URL{
		Scheme:   "http",
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}
}

// frameID maps Fetch Metadata onto the navigation model. Only documents
// (and clients that send no metadata) are top-level navigations.
func frameID(h http.Header) int {
	switch strings.ToLower(h.Get("Sec-Fetch-Dest")) {
	case "", "document":
		return domain.MainFrameID
	default:
		return subFrameID
	}
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func writeHijackedResponse(buf *bufio.ReadWriter, status int, message string) {
	fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s",
		status,
		http.StatusText(status),
		len(message),
		message,
	)
	_ = buf.Flush()
}

func pipeConnections(left, right net.Conn) {
	errCh := make(chan error, 2)

	go func() {
		_, err := io.Copy(left, right)
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(right, left)
		errCh <- err
	}()

	<-errCh
	left.Close()
	right.Close()
}
