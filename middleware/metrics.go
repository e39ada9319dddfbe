package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/webprogramming/estate/backend/metrics"
)

// Metrics records each request under its route template so ids do not
// explode label cardinality.
func Metrics(collector *metrics.Collector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			collector.RecordRequest(route, r.Method, rec.status, time.Since(start))
		})
	}
}
