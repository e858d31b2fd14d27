package auth

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultCacheTTL bounds how long a validated token is trusted without
// asking the underlying validator again.
const DefaultCacheTTL = 5 * time.Minute

// CachingValidator memoises successful validations of another validator.
// Failures are never cached.
type CachingValidator struct {
	next  Validator
	cache *ttlcache.Cache[string, *Identity]
}

// NewCachingValidator wraps next with a cache of the given ttl. Call Start
// to run expiry in the background and Stop to end it.
func NewCachingValidator(next Validator, ttl time.Duration) *CachingValidator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingValidator{
		next: next,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *Identity](ttl),
			ttlcache.WithDisableTouchOnHit[string, *Identity](),
		),
	}
}

// Start runs the expiry loop until Stop is called.
func (c *CachingValidator) Start() {
	go c.cache.Start()
}

// Stop ends the expiry loop.
func (c *CachingValidator) Stop() {
	c.cache.Stop()
}

// Validate returns the cached identity for token, or asks the wrapped
// validator and caches its answer.
func (c *CachingValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrTokenEmpty
	}
	if item := c.cache.Get(token); item != nil {
		return item.Value(), nil
	}

	id, err := c.next.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	c.cache.Set(token, id, ttlcache.DefaultTTL)
	return id, nil
}

// Len returns the number of cached tokens.
func (c *CachingValidator) Len() int {
	return c.cache.Len()
}
