package mw

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/narworks/muhasebe-asistani-sub000/internal/logging"
)

// RequestContext copies chi's request ID into the logging context so that
// handler logs can be filtered by request_id. It must run after
// middleware.RequestID.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
			r = r.WithContext(logging.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
