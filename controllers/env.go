package controllers

import (
	"log/slog"
	"time"

	"github.com/webprogramming/estate/backend/cache"
	"github.com/webprogramming/estate/backend/metrics"
	"github.com/webprogramming/estate/backend/store"
)

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	GenerateJWT(userID string, ttl time.Duration) (string, time.Time, error)
}

// Env holds the shared handles every handler needs. It is built once in main.
type Env struct {
	Users         store.UserStore
	Listings      store.ListingStore
	Cache         cache.ListingCache
	Tokens        TokenIssuer
	Metrics       *metrics.Collector
	Logger        *slog.Logger
	SecureCookies bool
}
