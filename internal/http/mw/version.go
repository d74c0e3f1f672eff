package mw

import (
	"net/http"

	"github.com/narworks/muhasebe-asistani-sub000/internal/version"
)

// VersionHeader carries the server version on every response.
const VersionHeader = "X-Portalscan-Version"

// APIVersion returns middleware that adds VersionHeader to all responses.
func APIVersion() func(http.Handler) http.Handler {
	v := version.Get().Version

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(VersionHeader, v)
			next.ServeHTTP(w, r)
		})
	}
}
