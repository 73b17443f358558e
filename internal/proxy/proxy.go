// Package proxy fronts the target application: a reverse proxy that
// rewrites HTML responses to carry the widget snippet, passes every
// other response through untouched and tunnels the target's own
// WebSocket upgrades raw so its live-reload channel keeps working.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// Config configures the injection proxy.
type Config struct {
	// Target is the upstream base URL, e.g. "http://localhost:3000".
	Target string

	// Dev switches the injected snippet to the asset dev server.
	Dev bool

	// AssetPort is the asset dev server port, used in dev mode.
	AssetPort int
}

// Proxy is the HTML-rewriting reverse proxy. One fixed upstream target.
type Proxy struct {
	target  *url.URL
	reverse *httputil.ReverseProxy
	markup  []byte
}

// New creates a proxy for cfg.Target.
func New(cfg Config) (*Proxy, error) {
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("proxy: parse target %q: %w", cfg.Target, err)
	}

	p := &Proxy{
		target: target,
		markup: snippet(cfg.Dev, cfg.AssetPort),
	}

	reverse := httputil.NewSingleHostReverseProxy(target)
	director := reverse.Director
	reverse.Director = func(r *http.Request) {
		director(r)
		r.Host = target.Host
		// HTML must arrive uncompressed for the rewrite.
		r.Header.Del("Accept-Encoding")
	}
	reverse.ModifyResponse = p.rewriteHTML
	reverse.ErrorHandler = p.upstreamError
	p.reverse = reverse
	return p, nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isWebSocketUpgrade(r) {
		p.proxyWebSocket(w, r)
		return
	}
	p.reverse.ServeHTTP(w, r)
}

// rewriteHTML buffers HTML responses and injects the widget snippet.
// Anything that is not HTML streams through byte-identical.
func (p *Proxy) rewriteHTML(resp *http.Response) error {
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	rewritten := injectHTML(body, p.markup)
	resp.Body = io.NopCloser(bytes.NewReader(rewritten))
	resp.ContentLength = int64(len(rewritten))
	// The body length changed; stale framing headers must not survive.
	resp.Header.Del("Content-Length")
	resp.Header.Del("Transfer-Encoding")
	return nil
}

const errorPage = `<!DOCTYPE html>
<html>
<head><title>gekto</title></head>
<body>
<h1>502 Bad Gateway</h1>
<p>The target application is not reachable. Is it running?</p>
</body>
</html>`

// upstreamError answers every upstream failure with the fixed 502 page.
// No retry.
func (p *Proxy) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("proxy: upstream %s %s: %v", r.Method, r.URL.Path, err)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	io.WriteString(w, errorPage)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// proxyWebSocket tunnels an upgrade raw: the client's handshake is
// replayed to the upstream verbatim and the upstream's 101 response
// flows back untouched, then both directions pipe until either side
// closes. The target's own hot-reload channel depends on this.
func (p *Proxy) proxyWebSocket(w http.ResponseWriter, r *http.Request) {
	upstream, err := net.Dial("tcp", p.target.Host)
	if err != nil {
		p.upstreamError(w, r, err)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		upstream.Close()
		http.Error(w, "websocket upgrade unsupported", http.StatusInternalServerError)
		return
	}
	client, buf, err := hj.Hijack()
	if err != nil {
		upstream.Close()
		log.Printf("proxy: hijack: %v", err)
		return
	}

	defer client.Close()
	defer upstream.Close()

	r.Host = p.target.Host
	if err := r.Write(upstream); err != nil {
		log.Printf("proxy: ws handshake to upstream: %v", err)
		return
	}
	// Bytes the server already buffered past the request head belong to
	// the tunnel.
	if n := buf.Reader.Buffered(); n > 0 {
		pending, _ := buf.Reader.Peek(n)
		if _, err := upstream.Write(pending); err != nil {
			return
		}
	}

	done := make(chan struct{}, 2)
	go pipe(upstream, client, done)
	go pipe(client, upstream, done)
	<-done
}

func pipe(dst, src net.Conn, done chan<- struct{}) {
	io.Copy(dst, src)
	done <- struct{}{}
}
