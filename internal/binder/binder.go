// Package binder implements the one-shot bind operation: discover OAuth
// client credentials and the destination catalog for a deployed route, then
// persist them as a configuration artifact for the forwarder.
package binder

import (
	"context"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/cfdproxy/internal/config"
	"github.com/vyrodovalexey/cfdproxy/internal/destination"
	"github.com/vyrodovalexey/cfdproxy/internal/platform"
)

// destinationLabel is the service label of the destination-catalog binding.
const destinationLabel = "destination"

// ProxyHost is the forwarder address recorded in every destination binding
// so dependent tooling can route <name>.dest traffic through this proxy.
const ProxyHost = "http://127.0.0.1"

// Catalog enumerates the destinations reachable with a set of
// destination-service credentials.
type Catalog interface {
	FetchAll(ctx context.Context, creds *destination.Credentials) ([]config.Destination, error)
}

// Options control a bind run.
type Options struct {
	// Port is the local forwarder port recorded in the artifact.
	Port int

	// EnvPath is the directory the artifact is written into.
	EnvPath string
}

// Binder performs bind runs against an injected platform and catalog.
type Binder struct {
	platform platform.Platform
	catalog  Catalog
	logger   *zap.Logger
}

// Option is a functional option for configuring the binder.
type Option func(*Binder)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Binder) {
		b.logger = logger
	}
}

// New creates a binder.
func New(p platform.Platform, c Catalog, opts ...Option) *Binder {
	b := &Binder{
		platform: p,
		catalog:  c,
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Bind runs the full discovery sequence for rawRoute and writes one
// configuration artifact. Nothing is written until every discovery step has
// succeeded; the artifact writer never overwrites prior artifacts. Returns
// the path of the file written.
func (b *Binder) Bind(ctx context.Context, rawRoute string, opts Options) (string, error) {
	route, err := platform.ParseRoute(rawRoute)
	if err != nil {
		return "", err
	}

	if opts.Port == 0 {
		opts.Port = config.DefaultSettings().Port
	}
	if opts.EnvPath == "" {
		opts.EnvPath = "."
	}

	b.logger.Info("binding route",
		zap.String("host", route.Host),
		zap.String("region", route.Region),
		zap.String("api", route.APIURL),
	)

	session, err := b.platform.Login(ctx, route.APIURL)
	if err != nil {
		return "", err
	}

	appGUID, err := b.platform.FindAppGUID(ctx, session, route.App)
	if err != nil {
		return "", err
	}
	b.logger.Debug("resolved application", zap.String("guid", appGUID))

	xsuaaBindings, err := b.platform.ServiceBindings(ctx, session, appGUID, config.XSUAALabel)
	if err != nil {
		return "", err
	}

	destBindings, err := b.platform.ServiceBindings(ctx, session, appGUID, destinationLabel)
	if err != nil {
		return "", err
	}

	creds, err := destination.CredentialsFromBinding(destBindings[0])
	if err != nil {
		return "", err
	}

	catalog, err := b.catalog.FetchAll(ctx, creds)
	if err != nil {
		return "", err
	}

	artifact := buildArtifact(route, xsuaaBindings[0], catalog, opts)

	path, err := config.WriteArtifact(opts.EnvPath, artifact)
	if err != nil {
		return "", err
	}

	b.logger.Info("artifact written",
		zap.String("path", path),
		zap.Int("destinations", len(catalog)),
		zap.String("target", artifact.Target),
	)

	return path, nil
}

// buildArtifact assembles the artifact from the discovered pieces. Each
// destination keeps its catalog attributes and gains the synthetic routing
// key plus the forwarder's own address.
func buildArtifact(route *platform.Route, xsuaa config.ServiceBinding, catalog []config.Destination, opts Options) *config.Artifact {
	name := xsuaa.Name
	if name == "" {
		name = route.App + "-" + config.XSUAALabel
	}

	services := map[string][]config.ServiceBinding{
		config.XSUAALabel: {
			{
				Label:       config.XSUAALabel,
				Plan:        "broker",
				Name:        name,
				Tags:        []string{config.XSUAALabel},
				Credentials: xsuaa.Credentials,
			},
		},
	}

	destinations := make([]config.Destination, 0, len(catalog))
	for _, d := range catalog {
		d["url"] = "http://" + d.Name() + ".dest"
		d["proxyHost"] = ProxyHost
		d["proxyPort"] = opts.Port
		destinations = append(destinations, d)
	}

	return &config.Artifact{
		Services:     services,
		Destinations: destinations,
		Target:       route.Target,
	}
}
