package forwarder

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/cfdproxy/internal/auth/oauth"
	"github.com/vyrodovalexey/cfdproxy/internal/config"
	"github.com/vyrodovalexey/cfdproxy/internal/middleware"
	"github.com/vyrodovalexey/cfdproxy/internal/observability"
	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// Default server timeouts. Read and write timeouts are deliberately unset:
// proxied transfers may legitimately run long.
const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
)

// ServerConfig holds configuration for the forwarder server.
type ServerConfig struct {
	// Port is the local listen port.
	Port int

	// LogRequests enables per-request forwarding logs.
	LogRequests bool

	// ShutdownTimeout bounds the graceful drain on shutdown.
	ShutdownTimeout time.Duration
}

// Server is the local proxy server. It resolves its target and credentials
// from the configuration artifact once at construction and serves until the
// context passed to Run is cancelled.
type Server struct {
	config  ServerConfig
	handler http.Handler
	cache   *oauth.Cache
	logger  observability.Logger
	zap     *zap.Logger

	httpServer *http.Server
	addr       string
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger. The underlying zap logger is
// shared with the OAuth2 collaborators.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		s.zap = logger
		s.logger = observability.NewZapLogger(logger)
	}
}

// NewServer creates a forwarder server from a loaded artifact. The artifact
// must carry a target and complete identity-service credentials.
func NewServer(artifact *config.Artifact, cfg ServerConfig, opts ...ServerOption) (*Server, error) {
	if artifact.Target == "" {
		return nil, util.NewConfigError(config.KeyTarget, "artifact has no target, run bind first")
	}

	target, err := url.Parse(artifact.Target)
	if err != nil || target.Host == "" {
		return nil, util.NewConfigError(config.KeyTarget, fmt.Sprintf("invalid target %q", artifact.Target))
	}

	creds, err := artifact.UAACredentials()
	if err != nil {
		return nil, err
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		config: cfg,
		logger: observability.NopLogger(),
		zap:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	client, err := oauth.NewClient(&oauth.Config{
		TokenEndpoint: creds.URL + "/oauth/token",
		ClientID:      creds.ClientID,
		ClientSecret:  creds.ClientSecret,
		Logger:        s.zap,
	})
	if err != nil {
		return nil, err
	}

	validator, err := oauth.NewIntrospectionValidator(&oauth.IntrospectionConfig{
		Endpoint:     creds.URL + "/introspect",
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Logger:       s.zap,
	})
	if err != nil {
		return nil, err
	}

	s.cache = oauth.NewCache(client, validator, oauth.WithCacheLogger(s.zap))

	handler := NewHandler(target, s.cache,
		WithHandlerLogger(s.logger),
		WithRequestLogging(cfg.LogRequests),
	)

	chain := middleware.Recovery(s.logger)(
		middleware.RequestID()(
			middleware.Logging(s.logger)(handler),
		),
	)
	s.handler = chain

	s.logger.Info("forwarder configured",
		observability.String("target", artifact.Target),
		observability.Any("destinations", artifact.DestinationNames()),
	)

	return s, nil
}

// Cache exposes the token cache; used by tests.
func (s *Server) Cache() *oauth.Cache {
	return s.cache
}

// Addr returns the bound listen address once Run has signalled readiness.
func (s *Server) Addr() string {
	return s.addr
}

// Run listens on the configured port and serves until ctx is cancelled,
// then drains in-flight requests within the shutdown timeout. If ready is
// non-nil it is closed once the listener is bound.
func (s *Server) Run(ctx context.Context, ready chan<- struct{}) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return util.WrapError(err, fmt.Sprintf("failed to listen on port %d", s.config.Port))
	}
	s.addr = listener.Addr().String()

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	s.logger.Info("forwarder listening", observability.String("addr", s.addr))

	if ready != nil {
		close(ready)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return util.WrapError(err, "server error")
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down forwarder")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return util.WrapError(err, "shutdown failed")
	}

	<-serveErr
	return nil
}
