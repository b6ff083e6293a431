package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/communitykit/pkg/cache"
	"github.com/dmitrymomot/communitykit/pkg/logger"
)

// GateConfig holds access gate settings.
type GateConfig struct {
	// CacheTTL bounds how long a cached access answer may lag the
	// projection. Invalidation on transitions keeps the common case fresh;
	// the TTL covers invalidation misses.
	CacheTTL time.Duration `env:"ACCESS_CACHE_TTL" envDefault:"30s"`
}

// AccessCache caches access answers per (buyer, community) pair. Misses are
// cheap, the projection read is a single indexed row, so implementations
// favor simplicity over hit rate.
type AccessCache interface {
	Get(ctx context.Context, buyerID, communityID uuid.UUID) (allowed bool, ok bool)
	Set(ctx context.Context, buyerID, communityID uuid.UUID, allowed bool)
	Delete(ctx context.Context, buyerID, communityID uuid.UUID)
}

// Gate answers "does this user currently have paid access to this
// community". Pure read side: it consults only the membership projection and
// never calls the payment gateway. Answers may lag true payment state by the
// webhook processing latency plus at most the cache TTL.
type Gate struct {
	memberships MembershipStore
	cache       AccessCache
	log         *slog.Logger
}

// NewGate creates an access gate. The cache is optional.
func NewGate(memberships MembershipStore, accessCache AccessCache, log *slog.Logger) *Gate {
	if memberships == nil {
		panic("subscription: membership store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gate{memberships: memberships, cache: accessCache, log: log}
}

// HasAccess reports whether the user holds paid access to the community.
// False for unknown pairs and for past-due memberships past their grace
// window. Store errors deny access and are logged rather than propagated:
// the callers are content handlers that can only fail closed anyway.
func (g *Gate) HasAccess(ctx context.Context, userID, communityID uuid.UUID) bool {
	if g.cache != nil {
		if allowed, ok := g.cache.Get(ctx, userID, communityID); ok {
			return allowed
		}
	}

	allowed := false
	m, err := g.memberships.Get(ctx, userID, communityID)
	switch {
	case err == nil:
		allowed = m.Grants(time.Now().UTC())
	case errors.Is(err, ErrMembershipNotFound):
		// No subscription ever existed for the pair.
	default:
		g.log.ErrorContext(ctx, "membership lookup failed",
			logger.UserID(userID),
			logger.CommunityID(communityID),
			logger.Error(err))
		return false
	}

	if g.cache != nil {
		g.cache.Set(ctx, userID, communityID, allowed)
	}
	return allowed
}

func accessKey(buyerID, communityID uuid.UUID) string {
	return fmt.Sprintf("membership:%s:%s", buyerID, communityID)
}

// RedisAccessCache is an AccessCache on a shared redis instance, so all
// application nodes see an invalidation immediately.
type RedisAccessCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAccessCache creates a redis-backed access cache.
func NewRedisAccessCache(client *redis.Client, cfg GateConfig) *RedisAccessCache {
	if client == nil {
		panic("subscription: redis client is required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	return &RedisAccessCache{client: client, ttl: cfg.CacheTTL}
}

func (c *RedisAccessCache) Get(ctx context.Context, buyerID, communityID uuid.UUID) (bool, bool) {
	val, err := c.client.Get(ctx, accessKey(buyerID, communityID)).Result()
	if err != nil {
		// Treat redis failure as a miss; the projection read still answers.
		return false, false
	}
	return val == "1", true
}

func (c *RedisAccessCache) Set(ctx context.Context, buyerID, communityID uuid.UUID, allowed bool) {
	val := "0"
	if allowed {
		val = "1"
	}
	c.client.Set(ctx, accessKey(buyerID, communityID), val, c.ttl)
}

func (c *RedisAccessCache) Delete(ctx context.Context, buyerID, communityID uuid.UUID) {
	c.client.Del(ctx, accessKey(buyerID, communityID))
}

type lruAccessEntry struct {
	allowed   bool
	expiresAt time.Time
}

// LRUAccessCache is an in-process AccessCache for single-node deployments
// where a shared redis is not worth running.
type LRUAccessCache struct {
	lru *cache.LRUCache[string, lruAccessEntry]
	ttl time.Duration
}

// NewLRUAccessCache creates an in-process access cache holding up to
// capacity pairs.
func NewLRUAccessCache(capacity int, cfg GateConfig) *LRUAccessCache {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	return &LRUAccessCache{
		lru: cache.NewLRUCache[string, lruAccessEntry](capacity),
		ttl: cfg.CacheTTL,
	}
}

func (c *LRUAccessCache) Get(ctx context.Context, buyerID, communityID uuid.UUID) (bool, bool) {
	entry, ok := c.lru.Get(accessKey(buyerID, communityID))
	if !ok || time.Now().After(entry.expiresAt) {
		return false, false
	}
	return entry.allowed, true
}

func (c *LRUAccessCache) Set(ctx context.Context, buyerID, communityID uuid.UUID, allowed bool) {
	c.lru.Put(accessKey(buyerID, communityID), lruAccessEntry{
		allowed:   allowed,
		expiresAt: time.Now().Add(c.ttl),
	})
}

func (c *LRUAccessCache) Delete(ctx context.Context, buyerID, communityID uuid.UUID) {
	c.lru.Remove(accessKey(buyerID, communityID))
}
