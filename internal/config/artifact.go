// Package config provides the configuration artifact produced by bind and
// consumed by the forwarder, plus optional file-based proxy settings.
package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// Artifact keys in the env-style serialization.
const (
	KeyServices     = "VCAP_SERVICES"
	KeyDestinations = "destinations"
	KeyTarget       = "CFDP_TARGET"
)

// XSUAALabel is the fixed service label under which the identity-service
// credentials are wrapped in the artifact.
const XSUAALabel = "xsuaa"

// ServiceBinding is a synthetic service-binding structure wrapping a set of
// service credentials, shaped like a platform-provided binding.
type ServiceBinding struct {
	Label       string         `json:"label"`
	Plan        string         `json:"plan"`
	Name        string         `json:"name"`
	Tags        []string       `json:"tags"`
	Credentials map[string]any `json:"credentials"`
}

// Destination is a single destination binding. Catalog-provided attributes
// are carried through unmodified; the proxy only sets name, url, proxyHost
// and proxyPort.
type Destination map[string]any

// Name returns the destination name.
func (d Destination) Name() string {
	if name, ok := d["name"].(string); ok {
		return name
	}
	return ""
}

// UAACredentials are the OAuth client credentials extracted from the
// identity-service binding.
type UAACredentials struct {
	ClientID     string
	ClientSecret string
	URL          string
}

// Artifact is the configuration artifact written by bind and read once by
// the forwarder at startup. It is immutable after creation.
type Artifact struct {
	Services     map[string][]ServiceBinding
	Destinations []Destination
	Target       string
}

// UAACredentials extracts the OAuth client credentials from the xsuaa
// service binding embedded in the artifact.
func (a *Artifact) UAACredentials() (*UAACredentials, error) {
	bindings := a.Services[XSUAALabel]
	if len(bindings) == 0 {
		return nil, util.NewConfigError(KeyServices, "no xsuaa binding in artifact")
	}

	creds := bindings[0].Credentials
	clientID, _ := creds["clientid"].(string)
	clientSecret, _ := creds["clientsecret"].(string)
	uaaURL, _ := creds["url"].(string)

	if clientID == "" || clientSecret == "" || uaaURL == "" {
		return nil, util.NewConfigError(KeyServices, "incomplete xsuaa credentials in artifact")
	}

	return &UAACredentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		URL:          uaaURL,
	}, nil
}

// Encode serializes the artifact into the line-oriented KEY=value format.
func (a *Artifact) Encode() ([]byte, error) {
	services, err := json.Marshal(a.Services)
	if err != nil {
		return nil, util.WrapError(err, "failed to encode services")
	}

	destinations, err := json.Marshal(a.Destinations)
	if err != nil {
		return nil, util.WrapError(err, "failed to encode destinations")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s=%s\n", KeyServices, services)
	fmt.Fprintf(&sb, "%s=%s\n", KeyDestinations, destinations)
	fmt.Fprintf(&sb, "%s=%s\n", KeyTarget, a.Target)

	return []byte(sb.String()), nil
}

// ParseArtifact parses an env-style artifact serialization. Unknown keys are
// ignored so hand-edited artifacts with extra entries keep loading.
func ParseArtifact(data []byte) (*Artifact, error) {
	artifact := &Artifact{}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, util.NewConfigError("artifact", fmt.Sprintf("malformed line %q", line))
		}

		switch key {
		case KeyServices:
			if err := json.Unmarshal([]byte(value), &artifact.Services); err != nil {
				return nil, util.NewConfigErrorWithCause(KeyServices, "invalid JSON", err)
			}
		case KeyDestinations:
			if err := json.Unmarshal([]byte(value), &artifact.Destinations); err != nil {
				return nil, util.NewConfigErrorWithCause(KeyDestinations, "invalid JSON", err)
			}
		case KeyTarget:
			artifact.Target = value
		}
	}

	return artifact, nil
}

// DestinationNames returns the sorted destination names in the artifact.
func (a *Artifact) DestinationNames() []string {
	names := make([]string, 0, len(a.Destinations))
	for _, d := range a.Destinations {
		if name := d.Name(); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
