// Package cache keeps listing search results in Redis so repeated searches
// skip the database. Any listing write drops every cached page.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/store"
)

const (
	keyPrefix   = "listing:"
	scanPattern = keyPrefix + "*"
	scanCount   = 100
)

type ListingCache interface {
	// Get returns the cached page for the canonical query, reporting false on a miss.
	Get(ctx context.Context, canonical url.Values) ([]models.Listing, bool)
	Set(ctx context.Context, canonical url.Values, listings []models.Listing)
	Invalidate(ctx context.Context) error
}

type RedisListingCache struct {
	client *redis.Client
	ttl    time.Duration
	phones store.PhoneCipher
	logger *slog.Logger
}

// NewRedisListingCache returns a cache whose entries expire after ttl. When
// phones is non-nil, phone numbers are sealed with it before they reach Redis.
func NewRedisListingCache(client *redis.Client, ttl time.Duration, phones store.PhoneCipher, logger *slog.Logger) *RedisListingCache {
	return &RedisListingCache{client: client, ttl: ttl, phones: phones, logger: logger}
}

func (c *RedisListingCache) Get(ctx context.Context, canonical url.Values) ([]models.Listing, bool) {
	key := Key(canonical)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("listing cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var listings []models.Listing
	if err := json.Unmarshal(raw, &listings); err != nil {
		c.logger.Warn("listing cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	if c.phones != nil {
		for i := range listings {
			if listings[i].PhoneNumber == "" {
				continue
			}
			phone, err := c.phones.Decrypt(listings[i].PhoneNumber)
			if err != nil {
				phone = ""
			}
			listings[i].PhoneNumber = phone
		}
	}
	return listings, true
}

func (c *RedisListingCache) Set(ctx context.Context, canonical url.Values, listings []models.Listing) {
	key := Key(canonical)
	sealed, err := c.seal(listings)
	if err != nil {
		c.logger.Warn("listing cache seal failed", "key", key, "error", err)
		return
	}
	raw, err := json.Marshal(sealed)
	if err != nil {
		c.logger.Warn("listing cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("listing cache write failed", "key", key, "error", err)
	}
}

// seal returns a copy of listings with every phone number encrypted.
func (c *RedisListingCache) seal(listings []models.Listing) ([]models.Listing, error) {
	if c.phones == nil {
		return listings, nil
	}
	sealed := make([]models.Listing, len(listings))
	copy(sealed, listings)
	for i := range sealed {
		if sealed[i].PhoneNumber == "" {
			continue
		}
		phone, err := c.phones.Encrypt(sealed[i].PhoneNumber)
		if err != nil {
			return nil, fmt.Errorf("encrypt phone number: %w", err)
		}
		sealed[i].PhoneNumber = phone
	}
	return sealed, nil
}

// Invalidate deletes every cached search page.
func (c *RedisListingCache) Invalidate(ctx context.Context) error {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, scanPattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", scanPattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete cached listings: %w", err)
	}
	c.logger.Debug("listing cache invalidated", "keys", len(keys))
	return nil
}

// Key hashes the sorted query so equivalent searches share an entry.
func Key(canonical url.Values) string {
	names := make([]string, 0, len(canonical))
	for name := range canonical {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		values := append([]string(nil), canonical[name]...)
		sort.Strings(values)
		for _, v := range values {
			sb.WriteString(name)
			sb.WriteString("=")
			sb.WriteString(v)
			sb.WriteString("&")
		}
	}
	sum := sha256.Sum256([]byte(strings.TrimSuffix(sb.String(), "&")))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Nop is used when Redis is not configured.
type Nop struct{}

func (Nop) Get(context.Context, url.Values) ([]models.Listing, bool) { return nil, false }
func (Nop) Set(context.Context, url.Values, []models.Listing)         {}
func (Nop) Invalidate(context.Context) error                          { return nil }
