// Package forwarder implements the long-running authenticated reverse proxy:
// destination resolution from the inbound host, lazy token refresh through
// the shared cache, request rewriting, and verbatim response streaming.
package forwarder

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/cfdproxy/internal/observability"
)

// AuthorizationBackupHeader carries the original client Authorization header
// so downstream systems can recover the caller's credential after the proxy
// overwrites Authorization with its own bearer token.
const AuthorizationBackupHeader = "x-approuter-authorization"

// proxyPathPrefix selects the destination on the routing service.
const proxyPathPrefix = "/proxy/"

// hopHeaders are headers that should not be forwarded.
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

// Metrics for the forwarder.
var proxiedRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cfdproxy_proxied_requests_total",
		Help: "Total number of proxied requests",
	},
	[]string{"result"},
)

// TokenSource yields a valid bearer token for an upstream request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Handler proxies a single request to the target routing service.
type Handler struct {
	target      *url.URL
	tokens      TokenSource
	logger      observability.Logger
	logRequests bool
	proxy       *httputil.ReverseProxy
}

// HandlerOption is a functional option for configuring the handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(logger observability.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithRequestLogging enables per-request forwarding logs.
func WithRequestLogging(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.logRequests = enabled
	}
}

// WithTransport sets the upstream transport; used by tests.
func WithTransport(transport http.RoundTripper) HandlerOption {
	return func(h *Handler) {
		h.proxy.Transport = transport
	}
}

// NewHandler creates a handler forwarding to target.
func NewHandler(target *url.URL, tokens TokenSource, opts ...HandlerOption) *Handler {
	h := &Handler{
		target: target,
		tokens: tokens,
		logger: observability.NopLogger(),
	}

	h.proxy = &httputil.ReverseProxy{
		Director: h.director,
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		// Immediate flush so streamed upstream responses reach the
		// client without buffering.
		FlushInterval: -1,
		ErrorHandler:  h.errorHandler,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// DestinationFromHost extracts the destination name as the first label of
// an inbound Host header. Any label is accepted; the routing service is the
// authority on whether the destination exists.
func DestinationFromHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	label, _, _ := strings.Cut(host, ".")
	return label
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	destination := DestinationFromHost(r.Host)

	if h.logRequests {
		h.logger.Info("forwarding request",
			observability.String("path", r.URL.RequestURI()),
			observability.String("destination", destination),
		)
	}

	token, err := h.tokens.Token(r.Context())
	if err != nil {
		proxiedRequestsTotal.WithLabelValues("token_error").Inc()
		// Diagnostic detail stays in local logs; the client only sees a
		// generic gateway failure.
		h.logger.WithContext(r.Context()).Error("failed to resolve access token",
			observability.String("destination", destination),
			observability.Error(err),
		)
		writeBadGateway(w, "failed to authenticate upstream request")
		return
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		r.Header.Set(AuthorizationBackupHeader, auth)
	}
	r.Header.Set("Authorization", "Bearer "+token)

	proxiedRequestsTotal.WithLabelValues("forwarded").Inc()
	h.proxy.ServeHTTP(w, r)
}

// director rewrites the request for the target routing service: the
// destination prefix is inserted ahead of the original path and the
// connection origin becomes the proxy itself.
func (h *Handler) director(req *http.Request) {
	destination := DestinationFromHost(req.Host)

	req.URL.Scheme = h.target.Scheme
	req.URL.Host = h.target.Host
	req.URL.Path = proxyPathPrefix + destination + req.URL.Path
	if req.URL.RawPath != "" {
		req.URL.RawPath = proxyPathPrefix + destination + req.URL.RawPath
	}

	for _, header := range hopHeaders {
		req.Header.Del(header)
	}

	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	req.Header.Set("X-Forwarded-Host", req.Host)
	if req.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}

	req.Host = h.target.Host
}

// errorHandler reports upstream failures without leaking internals to the
// client.
func (h *Handler) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	proxiedRequestsTotal.WithLabelValues("upstream_error").Inc()
	h.logger.WithContext(r.Context()).Error("proxy error",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Error(err),
	)
	writeBadGateway(w, "failed to reach routing service")
}

// writeBadGateway writes a generic 502 JSON body.
func writeBadGateway(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = io.WriteString(w, `{"error":"bad gateway","message":"`+message+`"}`)
}
