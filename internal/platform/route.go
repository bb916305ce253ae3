// Package platform provides route parsing and the credential-discovery
// collaborator used by bind: platform login, app lookup, and service-binding
// retrieval.
package platform

import (
	"regexp"
	"strings"

	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// routePattern is the fixed domain-suffix pattern a bindable route must
// match. The region token is extracted from the second capture group.
var routePattern = regexp.MustCompile(`^([^.]+)\.cfapps\.([^.]+)\.hana\.ondemand\.com$`)

// Route is the decomposed form of a bind route argument.
type Route struct {
	// Host is the route hostname without scheme or path.
	Host string

	// App is the first hostname label, the route's host in the platform.
	App string

	// Region is the platform region token extracted from the hostname.
	Region string

	// APIURL is the platform API base URL derived from the region.
	APIURL string

	// Target is the route rewritten to its https host-only form; this
	// becomes CFDP_TARGET in the artifact.
	Target string
}

// ParseRoute decomposes a route argument. Schemes and trailing paths are
// tolerated on input; a hostname that does not match the expected domain
// suffix yields a FormatError before any network call.
func ParseRoute(raw string) (*Route, error) {
	host := strings.TrimSpace(raw)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}

	if host == "" {
		return nil, util.NewFormatError(raw, "empty route")
	}

	m := routePattern.FindStringSubmatch(host)
	if m == nil {
		return nil, util.NewFormatError(raw, "expected <app>.cfapps.<region>.hana.ondemand.com")
	}

	return &Route{
		Host:   host,
		App:    m[1],
		Region: m[2],
		APIURL: "https://api.cf." + m[2] + ".hana.ondemand.com",
		Target: "https://" + host,
	}, nil
}
