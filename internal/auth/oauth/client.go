// Package oauth provides the OAuth2 client-credentials flow and the shared
// access-token cache used by the forwarder.
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

// Common errors for the OAuth2 client.
var (
	ErrTokenRequestFailed   = errors.New("token request failed")
	ErrInvalidResponse      = errors.New("invalid token response")
	ErrTokenExpired         = errors.New("token expired")
	ErrMissingClientID      = errors.New("missing client ID")
	ErrMissingClientSecret  = errors.New("missing client secret")
	ErrMissingTokenEndpoint = errors.New("missing token endpoint")
)

// Metrics for the OAuth2 client.
var (
	tokenRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfdproxy_oauth2_token_request_total",
			Help: "Total number of OAuth2 token requests",
		},
		[]string{"result"},
	)

	tokenRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cfdproxy_oauth2_token_request_duration_seconds",
			Help:    "Duration of OAuth2 token requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
)

// maxResponseBody bounds identity-service response reads.
const maxResponseBody = 1024 * 1024

// tokenResponse represents an OAuth2 token response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Config holds configuration for the OAuth2 client.
type Config struct {
	// TokenEndpoint is the OAuth2 token endpoint URL.
	TokenEndpoint string

	// ClientID is the OAuth2 client ID.
	ClientID string

	// ClientSecret is the OAuth2 client secret.
	ClientSecret string

	// Timeout is the timeout for token requests.
	Timeout time.Duration

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Logger is the logger to use (optional).
	Logger *zap.Logger
}

// Client performs OAuth2 client-credentials token requests.
type Client struct {
	tokenEndpoint string
	clientID      string
	clientSecret  string
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewClient creates a new OAuth2 client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	if config.TokenEndpoint == "" {
		return nil, ErrMissingTokenEndpoint
	}

	if config.ClientID == "" {
		return nil, ErrMissingClientID
	}

	if config.ClientSecret == "" {
		return nil, ErrMissingClientSecret
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

	return &Client{
		tokenEndpoint: config.TokenEndpoint,
		clientID:      config.ClientID,
		clientSecret:  config.ClientSecret,
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

// Fetch performs a client-credentials exchange and returns the opaque
// access token string.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	start := time.Now()
	result := "success"

	defer func() {
		tokenRequestTotal.WithLabelValues(result).Inc()
		tokenRequestDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		result = "request_error"
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result = "network_error"
		return "", fmt.Errorf("%w: %w", ErrTokenRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		result = "read_error"
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		result = "token_error"
		c.logger.Error("token request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return "", fmt.Errorf("%w: status %d", ErrTokenRequestFailed, resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		result = "parse_error"
		return "", fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	if tokenResp.AccessToken == "" {
		result = "parse_error"
		return "", fmt.Errorf("%w: empty access token", ErrInvalidResponse)
	}

	c.logger.Debug("fetched new OAuth2 token",
		zap.String("tokenType", tokenResp.TokenType),
		zap.Int64("expiresIn", tokenResp.ExpiresIn),
	)

	return tokenResp.AccessToken, nil
}
