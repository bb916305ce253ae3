package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/vyrodovalexey/cfdproxy/internal/observability"
)

// Recovery returns a middleware that recovers from panics in the handler
// chain, logging the panic locally and returning a bare 500 to the client.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						observability.Any("panic", rec),
						observability.String("path", r.URL.Path),
						observability.String("stack", string(debug.Stack())),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
