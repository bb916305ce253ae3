package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Metrics for token validation.
var tokenValidationTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cfdproxy_token_validation_total",
		Help: "Total number of token validation checks",
	},
	[]string{"verdict"},
)

// Validator decides whether a cached token may still be used. A nil return
// means the token is valid; ErrTokenExpired means it must be refetched; any
// other error is a hard failure for the in-flight request. The check is a
// full validity check against the identity service, not merely an expiry
// comparison.
type Validator interface {
	Validate(ctx context.Context, token string) error
}

// introspectionResponse is the relevant subset of an RFC 7662 response.
type introspectionResponse struct {
	Active bool `json:"active"`
}

// IntrospectionValidator validates tokens against the identity service's
// introspection endpoint using the locally-known client credentials.
type IntrospectionValidator struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger
}

// IntrospectionConfig holds configuration for the introspection validator.
type IntrospectionConfig struct {
	// Endpoint is the OAuth2 introspection endpoint URL.
	Endpoint string

	// ClientID is the OAuth2 client ID.
	ClientID string

	// ClientSecret is the OAuth2 client secret.
	ClientSecret string

	// Timeout is the timeout for introspection requests.
	Timeout time.Duration

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Logger is the logger to use (optional).
	Logger *zap.Logger
}

// NewIntrospectionValidator creates a new introspection validator.
func NewIntrospectionValidator(config *IntrospectionConfig) (*IntrospectionValidator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if config.Endpoint == "" {
		return nil, errors.New("introspection endpoint is required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IntrospectionValidator{
		endpoint:     config.Endpoint,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// Validate implements Validator.
func (v *IntrospectionValidator) Validate(ctx context.Context, token string) error {
	data := url.Values{}
	data.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		tokenValidationTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(v.clientID, v.clientSecret)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		tokenValidationTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("introspection request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		tokenValidationTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		tokenValidationTotal.WithLabelValues("error").Inc()
		v.logger.Error("introspection request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return fmt.Errorf("introspection failed: status %d", resp.StatusCode)
	}

	var introspection introspectionResponse
	if err := json.Unmarshal(body, &introspection); err != nil {
		tokenValidationTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to parse introspection response: %w", err)
	}

	if !introspection.Active {
		tokenValidationTotal.WithLabelValues("expired").Inc()
		return ErrTokenExpired
	}

	tokenValidationTotal.WithLabelValues("valid").Inc()
	return nil
}
