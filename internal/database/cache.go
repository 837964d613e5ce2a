package database

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// Cache key prefixes
	CacheKeyDashboard  = "commeet:dashboard:"
	blacklistKeyPrefix = "commeet:blacklist:"
	oauthKeyPrefix     = "commeet:oauth:"

	// Cache TTLs
	CacheTTLDashboard = 1 * time.Minute
	oauthStateTTL     = 10 * time.Minute
)

// CacheGet retrieves a value from Redis cache and unmarshals it into dest
func CacheGet(key string, dest interface{}) error {
	ctx := context.Background()
	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// CacheSet stores a value in Redis cache with TTL
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Redis.Set(ctx, key, data, ttl).Err()
}

// CacheDelete removes keys from Redis cache
func CacheDelete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Del(ctx, keys...).Err()
}

// BlacklistToken marks a JWT as revoked until it would have expired anyway
func BlacklistToken(token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Set(ctx, blacklistKeyPrefix+token, "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a JWT has been revoked by logout
func IsTokenBlacklisted(token string) bool {
	if Redis == nil {
		return false
	}
	ctx := context.Background()
	n, err := Redis.Exists(ctx, blacklistKeyPrefix+token).Result()
	return err == nil && n > 0
}

// OAuthState is the short-lived state stored between the authorize
// redirect and the provider callback. Verifier is only set for PKCE
// flows (Twitter).
type OAuthState struct {
	UserID   uint   `json:"user_id"`
	Provider string `json:"provider"`
	Verifier string `json:"verifier,omitempty"`
}

// StoreOAuthState saves an OAuth state payload under its nonce
func StoreOAuthState(nonce string, state OAuthState) error {
	return CacheSet(oauthKeyPrefix+nonce, state, oauthStateTTL)
}

// ConsumeOAuthState loads and deletes an OAuth state payload. A nonce
// can only be consumed once.
func ConsumeOAuthState(nonce string) (*OAuthState, error) {
	var state OAuthState
	key := oauthKeyPrefix + nonce
	if err := CacheGet(key, &state); err != nil {
		return nil, err
	}
	CacheDelete(key)
	return &state, nil
}
