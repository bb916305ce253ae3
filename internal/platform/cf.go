package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/cfdproxy/internal/config"
	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// CLIRunner executes a platform CLI command. Interactive commands get the
// process terminal; non-interactive commands return captured stdout.
type CLIRunner func(ctx context.Context, interactive bool, args ...string) (string, error)

// CloudFoundry implements Platform against the Cloud Foundry CLI (for
// session handling) and the v3 API (for discovery).
type CloudFoundry struct {
	httpClient *http.Client
	logger     *zap.Logger
	runCLI     CLIRunner
}

// CloudFoundryOption is a functional option for configuring CloudFoundry.
type CloudFoundryOption func(*CloudFoundry)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) CloudFoundryOption {
	return func(cf *CloudFoundry) {
		cf.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) CloudFoundryOption {
	return func(cf *CloudFoundry) {
		cf.logger = logger
	}
}

// WithCLIRunner replaces the CLI runner; used by tests.
func WithCLIRunner(runner CLIRunner) CloudFoundryOption {
	return func(cf *CloudFoundry) {
		cf.runCLI = runner
	}
}

// NewCloudFoundry creates a CloudFoundry platform client.
func NewCloudFoundry(opts ...CloudFoundryOption) *CloudFoundry {
	cf := &CloudFoundry{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
		runCLI:     runCF,
	}

	for _, opt := range opts {
		opt(cf)
	}

	return cf
}

// Login implements Platform. It first tries to reuse the CLI's existing
// session token; when that is missing or does not look like a valid bearer
// credential it falls back to an interactive login.
func (cf *CloudFoundry) Login(ctx context.Context, apiURL string) (*Session, error) {
	token, err := cf.sessionToken(ctx)
	if err == nil {
		return &Session{APIURL: apiURL, Authorization: token}, nil
	}
	cf.logger.Debug("no reusable session, falling back to interactive login", zap.Error(err))

	if _, err := cf.runCLI(ctx, true, "login", "-a", apiURL); err != nil {
		return nil, util.NewAuthenticationErrorWithCause("interactive login failed", err)
	}

	token, err = cf.sessionToken(ctx)
	if err != nil {
		return nil, util.NewAuthenticationErrorWithCause("no session token after login", err)
	}

	return &Session{APIURL: apiURL, Authorization: token}, nil
}

// sessionToken fetches the CLI's current OAuth token and checks that it
// looks like a valid bearer credential.
func (cf *CloudFoundry) sessionToken(ctx context.Context) (string, error) {
	out, err := cf.runCLI(ctx, false, "oauth-token")
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(out)
	if err := checkBearer(token); err != nil {
		return "", err
	}

	return token, nil
}

// checkBearer verifies that a session token has the shape of a bearer
// credential carrying a parseable JWT. Signature verification is left to
// the platform; this only rejects garbage before it is sent anywhere.
func checkBearer(token string) error {
	fields := strings.Fields(token)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
		return errors.New("session token is not a bearer credential")
	}

	if _, err := jwt.Parse([]byte(fields[1]), jwt.WithVerify(false), jwt.WithValidate(false)); err != nil {
		return util.WrapError(err, "session token is not a parseable JWT")
	}

	return nil
}

// FindAppGUID implements Platform. The route with the given host label is
// resolved first, then the application behind its first destination.
func (cf *CloudFoundry) FindAppGUID(ctx context.Context, session *Session, host string) (string, error) {
	var routes struct {
		Resources []struct {
			GUID string `json:"guid"`
		} `json:"resources"`
	}
	if err := cf.getJSON(ctx, session, "/v3/routes?hosts="+url.QueryEscape(host), &routes); err != nil {
		return "", err
	}
	if len(routes.Resources) == 0 {
		return "", util.NewDiscoveryError(host, "no route with host "+host)
	}

	var destinations struct {
		Destinations []struct {
			App struct {
				GUID string `json:"guid"`
			} `json:"app"`
		} `json:"destinations"`
	}
	if err := cf.getJSON(ctx, session, "/v3/routes/"+routes.Resources[0].GUID+"/destinations", &destinations); err != nil {
		return "", err
	}
	if len(destinations.Destinations) == 0 {
		return "", util.NewDiscoveryError(host, "route has no destinations")
	}

	return destinations.Destinations[0].App.GUID, nil
}

// ServiceBindings implements Platform by reading the app's environment,
// which carries the bound service credentials per service label.
func (cf *CloudFoundry) ServiceBindings(ctx context.Context, session *Session, appGUID, label string) ([]config.ServiceBinding, error) {
	var env struct {
		SystemEnvJSON struct {
			VCAPServices map[string][]config.ServiceBinding `json:"VCAP_SERVICES"`
		} `json:"system_env_json"`
	}
	if err := cf.getJSON(ctx, session, "/v3/apps/"+appGUID+"/env", &env); err != nil {
		return nil, err
	}

	bindings := env.SystemEnvJSON.VCAPServices[label]
	if len(bindings) == 0 {
		return nil, util.NewDiscoveryError(label, "bindings for "+label+" not found")
	}

	return bindings, nil
}

// getJSON performs an authenticated GET against the platform API and
// decodes the JSON response into out.
func (cf *CloudFoundry) getJSON(ctx context.Context, session *Session, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, session.APIURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", session.Authorization)
	req.Header.Set("Accept", "application/json")

	resp, err := cf.httpClient.Do(req)
	if err != nil {
		return util.WrapError(err, "platform API request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return util.WrapError(err, "failed to read platform API response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return util.NewAuthenticationError(fmt.Sprintf("platform API returned status %d for %s", resp.StatusCode, path))
	case resp.StatusCode != http.StatusOK:
		cf.logger.Error("platform API request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return util.NewDiscoveryError(path, fmt.Sprintf("platform API returned status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return util.WrapError(err, "failed to parse platform API response")
	}

	return nil
}

// runCF is the default CLIRunner backed by the cf binary.
func runCF(ctx context.Context, interactive bool, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "cf", args...)

	if interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return "", cmd.Run()
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("cf %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}
