package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cachedIdentity struct {
	identity  Identity
	expiresAt time.Time
}

// CachingVerifier memoizes successful JWT verifications so reconnect storms
// do not re-run signature checks. Entries never outlive the token itself.
// Failures are not cached.
type CachingVerifier struct {
	inner *JWTVerifier
	cache *expirable.LRU[string, cachedIdentity]
	now   func() time.Time
}

// NewCachingVerifier wraps inner with an LRU of at most size entries, each
// kept for at most ttl.
func NewCachingVerifier(inner *JWTVerifier, size int, ttl time.Duration) *CachingVerifier {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachingVerifier{
		inner: inner,
		cache: expirable.NewLRU[string, cachedIdentity](size, nil, ttl),
		now:   time.Now,
	}
}

func (c *CachingVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	key := tokenKey(token)
	if entry, ok := c.cache.Get(key); ok {
		if c.now().Before(entry.expiresAt) {
			id := entry.identity
			return &id, nil
		}
		c.cache.Remove(key)
	}

	id, exp, err := c.inner.parse(token)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cachedIdentity{identity: *id, expiresAt: exp})
	return id, nil
}

// Len returns the number of cached identities.
func (c *CachingVerifier) Len() int { return c.cache.Len() }

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
