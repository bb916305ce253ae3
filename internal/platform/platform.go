package platform

import (
	"context"

	"github.com/vyrodovalexey/cfdproxy/internal/config"
)

// Session is an authenticated platform API context.
type Session struct {
	// APIURL is the platform API base URL the session is bound to.
	APIURL string

	// Authorization is the full Authorization header value for API calls,
	// e.g. "bearer eyJ...".
	Authorization string
}

// Platform is the credential-discovery collaborator consumed by bind. It is
// an interface so the binder can be exercised against a fake without any
// network or external CLI dependency.
type Platform interface {
	// Login yields an authenticated session for the given API base URL,
	// reusing an existing session token when possible and falling back to
	// interactive login otherwise.
	Login(ctx context.Context, apiURL string) (*Session, error)

	// FindAppGUID resolves the application identifier behind the route
	// with the given host label.
	FindAppGUID(ctx context.Context, session *Session, host string) (string, error)

	// ServiceBindings fetches the service-binding credentials of the given
	// service label bound to the application.
	ServiceBindings(ctx context.Context, session *Session, appGUID, label string) ([]config.ServiceBinding, error)
}
