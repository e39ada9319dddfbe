package controllers

import "context"

type ContextKey string

const (
	UserIDKey    = ContextKey("userID")
	RequestIDKey = ContextKey("requestID")
)

// UserIDFromContext returns the id placed on the request by the auth middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
