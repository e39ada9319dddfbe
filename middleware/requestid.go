package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/webprogramming/estate/backend/controllers"
)

const (
	RequestIDHeader = "X-Request-ID"

	maxRequestIDLen = 128
)

// RequestID reuses the caller's X-Request-ID when it looks sane and mints a
// UUID otherwise. The id is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), controllers.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
