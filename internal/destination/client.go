// Package destination provides the destination-catalog client used by bind
// to enumerate the destinations visible to a subaccount.
package destination

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/vyrodovalexey/cfdproxy/internal/config"
	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// catalogPath lists all destinations on subaccount level.
const catalogPath = "/destination-configuration/v1/subaccountDestinations"

// Credentials are the destination-service binding credentials needed to
// query the catalog.
type Credentials struct {
	// URI is the destination service base URL.
	URI string

	// ClientID and ClientSecret authenticate the client-credentials
	// exchange against AuthURL.
	ClientID     string
	ClientSecret string

	// AuthURL is the identity service base URL embedded in the binding.
	AuthURL string
}

// CredentialsFromBinding extracts catalog credentials from a
// destination-service binding.
func CredentialsFromBinding(binding config.ServiceBinding) (*Credentials, error) {
	uri, _ := binding.Credentials["uri"].(string)
	clientID, _ := binding.Credentials["clientid"].(string)
	clientSecret, _ := binding.Credentials["clientsecret"].(string)
	authURL, _ := binding.Credentials["url"].(string)

	if uri == "" || clientID == "" || clientSecret == "" || authURL == "" {
		return nil, util.NewDiscoveryError("destination", "incomplete destination service credentials")
	}

	return &Credentials{
		URI:          uri,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      authURL,
	}, nil
}

// Client queries the destination catalog.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for catalog and token requests.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a catalog client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchAll performs a client-credentials exchange against the identity
// endpoint embedded in creds and returns every destination visible to the
// subaccount, names normalized and catalog attributes carried through.
func (c *Client) FetchAll(ctx context.Context, creds *Credentials) ([]config.Destination, error) {
	cc := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     strings.TrimSuffix(creds.AuthURL, "/") + "/oauth/token",
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	httpClient := cc.Client(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(creds.URI, "/")+catalogPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, util.NewDiscoveryErrorWithCause("destination catalog", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, util.WrapError(err, "failed to read catalog response")
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("destination catalog request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, util.NewDiscoveryError("destination catalog", fmt.Sprintf("status %d", resp.StatusCode))
	}

	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, util.WrapError(err, "failed to parse catalog response")
	}

	destinations := make([]config.Destination, 0, len(raw))
	for _, entry := range raw {
		destinations = append(destinations, normalize(entry))
	}

	c.logger.Debug("fetched destination catalog", zap.Int("count", len(destinations)))
	return destinations, nil
}

// normalize moves the catalog's capitalized Name attribute to the lowercase
// key the artifact format uses, leaving every other attribute untouched.
func normalize(entry map[string]any) config.Destination {
	d := config.Destination(entry)
	if _, ok := d["name"]; !ok {
		if name, ok := d["Name"].(string); ok {
			d["name"] = name
			delete(d, "Name")
		}
	}
	return d
}
