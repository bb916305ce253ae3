package binder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vyrodovalexey/cfdproxy/internal/config"
	"github.com/vyrodovalexey/cfdproxy/internal/destination"
	"github.com/vyrodovalexey/cfdproxy/internal/platform"
	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// fakePlatform is a scripted Platform implementation.
type fakePlatform struct {
	loginErr    error
	appGUIDErr  error
	bindings    map[string][]config.ServiceBinding
	bindingsErr error

	loginCalls int
	seenAPIURL string
	seenHost   string
}

func (f *fakePlatform) Login(ctx context.Context, apiURL string) (*platform.Session, error) {
	f.loginCalls++
	f.seenAPIURL = apiURL
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &platform.Session{APIURL: apiURL, Authorization: "bearer fake"}, nil
}

func (f *fakePlatform) FindAppGUID(ctx context.Context, session *platform.Session, host string) (string, error) {
	f.seenHost = host
	if f.appGUIDErr != nil {
		return "", f.appGUIDErr
	}
	return "app-guid", nil
}

func (f *fakePlatform) ServiceBindings(ctx context.Context, session *platform.Session, appGUID, label string) ([]config.ServiceBinding, error) {
	if f.bindingsErr != nil {
		return nil, f.bindingsErr
	}
	bindings := f.bindings[label]
	if len(bindings) == 0 {
		return nil, util.NewDiscoveryError(label, "bindings for "+label+" not found")
	}
	return bindings, nil
}

// fakeCatalog is a scripted Catalog implementation.
type fakeCatalog struct {
	destinations []config.Destination
	err          error
	seenCreds    *destination.Credentials
}

func (f *fakeCatalog) FetchAll(ctx context.Context, creds *destination.Credentials) ([]config.Destination, error) {
	f.seenCreds = creds
	if f.err != nil {
		return nil, f.err
	}
	return f.destinations, nil
}

func healthyPlatform() *fakePlatform {
	return &fakePlatform{
		bindings: map[string][]config.ServiceBinding{
			config.XSUAALabel: {
				{
					Label: config.XSUAALabel,
					Name:  "my-xsuaa",
					Credentials: map[string]any{
						"clientid":     "sb-my-app",
						"clientsecret": "s3cret",
						"url":          "https://auth.example.com",
					},
				},
			},
			destinationLabel: {
				{
					Label: destinationLabel,
					Credentials: map[string]any{
						"uri":          "https://dest.example.com",
						"clientid":     "dest-id",
						"clientsecret": "dest-secret",
						"url":          "https://auth.example.com",
					},
				},
			},
		},
	}
}

func TestBinder_Bind(t *testing.T) {
	dir := t.TempDir()
	p := healthyPlatform()
	c := &fakeCatalog{
		destinations: []config.Destination{
			{"name": "billing", "Type": "HTTP"},
			{"name": "crm"},
		},
	}

	b := New(p, c, WithLogger(zaptest.NewLogger(t)))
	path, err := b.Bind(context.Background(), "https://myapp.cfapps.eu10.hana.ondemand.com", Options{
		Port:    7000,
		EnvPath: dir,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".env"), path)

	// The login used the region-derived API URL and the route's host label.
	assert.Equal(t, "https://api.cf.eu10.hana.ondemand.com", p.seenAPIURL)
	assert.Equal(t, "myapp", p.seenHost)

	// The catalog was queried with the destination binding's credentials.
	require.NotNil(t, c.seenCreds)
	assert.Equal(t, "dest-id", c.seenCreds.ClientID)

	artifact, err := config.LoadArtifact(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://myapp.cfapps.eu10.hana.ondemand.com", artifact.Target)
	assert.Equal(t, []string{"billing", "crm"}, artifact.DestinationNames())

	creds, err := artifact.UAACredentials()
	require.NoError(t, err)
	assert.Equal(t, "sb-my-app", creds.ClientID)

	// Destination bindings carry the synthetic routing key, the proxy
	// address, and the pass-through catalog attributes.
	billing := artifact.Destinations[0]
	assert.Equal(t, "http://billing.dest", billing["url"])
	assert.Equal(t, ProxyHost, billing["proxyHost"])
	assert.Equal(t, float64(7000), billing["proxyPort"])
	assert.Equal(t, "HTTP", billing["Type"])

	binding := artifact.Services[config.XSUAALabel][0]
	assert.Equal(t, config.XSUAALabel, binding.Label)
	assert.Equal(t, "my-xsuaa", binding.Name)
	assert.Equal(t, []string{config.XSUAALabel}, binding.Tags)
}

func TestBinder_Bind_FormatErrorBeforeAnyCall(t *testing.T) {
	p := healthyPlatform()
	b := New(p, &fakeCatalog{})

	_, err := b.Bind(context.Background(), "myapp.example.com", Options{EnvPath: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, &util.FormatError{}))
	assert.Zero(t, p.loginCalls)
}

func TestBinder_Bind_ErrorsLeaveNothingWritten(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *fakePlatform, c *fakeCatalog)
		check func(t *testing.T, err error)
	}{
		{
			name: "login failure",
			setup: func(p *fakePlatform, c *fakeCatalog) {
				p.loginErr = util.NewAuthenticationError("no session")
			},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, util.ErrAuthFailed))
			},
		},
		{
			name: "no matching route",
			setup: func(p *fakePlatform, c *fakeCatalog) {
				p.appGUIDErr = util.NewDiscoveryError("myapp", "no route")
			},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, util.ErrNotFound))
			},
		},
		{
			name: "missing xsuaa binding",
			setup: func(p *fakePlatform, c *fakeCatalog) {
				delete(p.bindings, config.XSUAALabel)
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "bindings for xsuaa not found")
			},
		},
		{
			name: "missing destination binding",
			setup: func(p *fakePlatform, c *fakeCatalog) {
				delete(p.bindings, destinationLabel)
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "bindings for destination not found")
			},
		},
		{
			name: "catalog failure",
			setup: func(p *fakePlatform, c *fakeCatalog) {
				c.err = util.NewDiscoveryError("destination catalog", "status 500")
			},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, &util.DiscoveryError{}))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			p := healthyPlatform()
			c := &fakeCatalog{destinations: []config.Destination{{"name": "billing"}}}
			tt.setup(p, c)

			b := New(p, c)
			_, err := b.Bind(context.Background(), "myapp.cfapps.eu10.hana.ondemand.com", Options{EnvPath: dir})
			require.Error(t, err)
			tt.check(t, err)

			// Discovery failures abort the run before anything is written.
			entries, readErr := os.ReadDir(dir)
			require.NoError(t, readErr)
			assert.Empty(t, entries)
		})
	}
}

func TestBinder_Bind_DefaultsPortAndPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	p := healthyPlatform()
	c := &fakeCatalog{destinations: []config.Destination{{"name": "billing"}}}

	b := New(p, c)
	path, err := b.Bind(context.Background(), "myapp.cfapps.eu10.hana.ondemand.com", Options{})
	require.NoError(t, err)

	artifact, err := config.LoadArtifact(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, float64(config.DefaultSettings().Port), artifact.Destinations[0]["proxyPort"])
}
