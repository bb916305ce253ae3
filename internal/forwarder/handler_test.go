package forwarder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenSource struct {
	token string
	err   error
	calls int
}

func (f *fakeTokenSource) Token(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

// recordedRequest captures what the backend saw.
type recordedRequest struct {
	path   string
	query  string
	header http.Header
	host   string
}

func recordingBackend(t *testing.T) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.header = r.Header.Clone()
		rec.host = r.Host
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("backend response"))
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func TestDestinationFromHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"billing.dest", "billing"},
		{"billing.dest:5050", "billing"},
		{"crm.local", "crm"},
		{"127.0.0.1:5050", "127"},
		{"orders", "orders"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, DestinationFromHost(tt.host))
		})
	}
}

func TestHandler_RewritesPathAndQuery(t *testing.T) {
	backend, rec := recordingBackend(t)
	target, err := url.Parse(backend.URL)
	require.NoError(t, err)

	handler := NewHandler(target, &fakeTokenSource{token: "tok-1"})

	req := httptest.NewRequest(http.MethodGet, "http://crm.local:5050/orders?id=5", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/proxy/crm/orders", rec.path)
	assert.Equal(t, "id=5", rec.query)
	assert.Equal(t, "backend response", w.Body.String())
}

func TestHandler_AttachesBearerAndRelabelsAuthorization(t *testing.T) {
	backend, rec := recordingBackend(t)
	target, err := url.Parse(backend.URL)
	require.NoError(t, err)

	handler := NewHandler(target, &fakeTokenSource{token: "fresh-token"})

	req := httptest.NewRequest(http.MethodGet, "http://billing.dest/invoice/42", nil)
	req.Header.Set("Authorization", "Bearer client-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/proxy/billing/invoice/42", rec.path)
	assert.Equal(t, "Bearer fresh-token", rec.header.Get("Authorization"))
	assert.Equal(t, "Bearer client-token", rec.header.Get(AuthorizationBackupHeader))
}

func TestHandler_NoClientAuthorizationNoBackupHeader(t *testing.T) {
	backend, rec := recordingBackend(t)
	target, err := url.Parse(backend.URL)
	require.NoError(t, err)

	handler := NewHandler(target, &fakeTokenSource{token: "tok"})

	req := httptest.NewRequest(http.MethodGet, "http://billing.dest/ping", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rec.header.Get(AuthorizationBackupHeader))
}

func TestHandler_SetsForwardingHeaders(t *testing.T) {
	backend, rec := recordingBackend(t)
	target, err := url.Parse(backend.URL)
	require.NoError(t, err)

	handler := NewHandler(target, &fakeTokenSource{token: "tok"})

	req := httptest.NewRequest(http.MethodGet, "http://billing.dest/ping", nil)
	req.RemoteAddr = "192.0.2.7:41234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "192.0.2.7", rec.header.Get("X-Forwarded-For"))
	assert.Equal(t, "billing.dest", rec.header.Get("X-Forwarded-Host"))
	assert.Equal(t, "http", rec.header.Get("X-Forwarded-Proto"))
	assert.Equal(t, target.Host, rec.host)
}

func TestHandler_TokenErrorReturns502(t *testing.T) {
	target, err := url.Parse("http://unreachable.invalid")
	require.NoError(t, err)

	tokens := &fakeTokenSource{err: errors.New("identity service down")}
	handler := NewHandler(target, tokens)

	req := httptest.NewRequest(http.MethodGet, "http://billing.dest/invoice/42", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	// The client must not learn why authentication failed.
	assert.NotContains(t, w.Body.String(), "identity service down")
	assert.Equal(t, 1, tokens.calls)
}

func TestHandler_UpstreamErrorReturns502(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target, err := url.Parse(backend.URL)
	require.NoError(t, err)
	backend.Close()

	handler := NewHandler(target, &fakeTokenSource{token: "tok"})

	req := httptest.NewRequest(http.MethodGet, "http://billing.dest/ping", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
