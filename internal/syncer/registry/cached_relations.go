package registry

import (
	"context"
	"errors"
	"time"

	"github.com/indexflow-go/internal/domain/change"
	"github.com/indexflow-go/pkg/cache"
	"github.com/indexflow-go/pkg/logger"
)

// CachedRelations wraps a RelationSource with a cache so expansion does not
// hammer the record store for hot identities. Entries are invalidated when a
// relation event arrives for the identity.
type CachedRelations struct {
	source RelationSource
	cache  cache.Cache
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedRelations(source RelationSource, c cache.Cache, ttl time.Duration, log logger.Logger) *CachedRelations {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRelations{source: source, cache: c, ttl: ttl, logger: log}
}

func cacheKey(identity change.Identity) string {
	return "rel:" + identity.String()
}

func (c *CachedRelations) RelatedIDsOf(ctx context.Context, identity change.Identity) ([]change.Identity, error) {
	var cached []change.Identity
	err := c.cache.Get(ctx, cacheKey(identity), &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("Relation cache read failed", "error", err, "identity", identity.String())
	}

	related, err := c.source.RelatedIDsOf(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, cacheKey(identity), related, c.ttl); err != nil {
		c.logger.Warn("Relation cache write failed", "error", err, "identity", identity.String())
	}
	return related, nil
}

// Invalidate drops the cached relations for an identity.
func (c *CachedRelations) Invalidate(ctx context.Context, identity change.Identity) {
	if err := c.cache.Delete(ctx, cacheKey(identity)); err != nil {
		c.logger.Warn("Relation cache invalidation failed", "error", err, "identity", identity.String())
	}
}
