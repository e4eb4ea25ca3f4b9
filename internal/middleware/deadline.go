package middleware

import (
	"net/http"
	"time"
)

// WriteDeadline gives requests on paths a write deadline of timeout, replacing the
// server-wide WriteTimeout for those endpoints only. It wraps the router itself because
// the deadline lives on the connection, below gin's writer.
func WriteDeadline(next http.Handler, timeout time.Duration, paths ...string) http.Handler {
	long := make(map[string]bool, len(paths))
	for _, p := range paths {
		long[p] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if long[r.URL.Path] {
			// ErrNotSupported from recorders and hijacked writers is fine to ignore
			_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(timeout))
		}
		next.ServeHTTP(w, r)
	})
}
