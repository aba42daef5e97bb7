package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-simulation-admin/shared/models"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
)

// ErrTenantSuspended is returned when a tenant exists but is switched off.
var ErrTenantSuspended = errors.New("tenant is suspended")

const tenantKeyPrefix = "tenant:ref:"

// TenantLookup is the storage side of the cache.
type TenantLookup interface {
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
}

// TenantCache resolves tenant slugs and subdomains to tenant references,
// keeping the answers in Redis. Cache failures never fail a lookup: the
// breaker opens and lookups go straight to the database.
//
// Only the reference is cached. A cache hit says nothing about whether the
// tenant is still active; that is checked per request by the tenant auth.
type TenantCache struct {
	client  *redis.Client
	tenants TenantLookup
	ttl     time.Duration
	breaker *CircuitBreaker
	log     logrus.FieldLogger
}

// NewRedisClient opens a client for addr and checks that it answers.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewTenantCache returns a cache over tenants. A nil client disables caching.
func NewTenantCache(client *redis.Client, tenants TenantLookup, ttl time.Duration, log logrus.FieldLogger) *TenantCache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TenantCache{
		client:  client,
		tenants: tenants,
		ttl:     ttl,
		breaker: NewCircuitBreaker("tenant-cache", 5, 30*time.Second, log),
		log:     log,
	}
}

// BySlug returns the tenant reference for slug.
func (tc *TenantCache) BySlug(ctx context.Context, slug string) (uuid.UUID, error) {
	return tc.resolve(ctx, "slug:"+normalizeKey(slug), func() (*models.Tenant, error) {
		return tc.tenants.GetBySlug(ctx, slug)
	})
}

// BySubdomain returns the tenant reference for subdomain.
func (tc *TenantCache) BySubdomain(ctx context.Context, subdomain string) (uuid.UUID, error) {
	return tc.resolve(ctx, "subdomain:"+normalizeKey(subdomain), func() (*models.Tenant, error) {
		return tc.tenants.GetBySubdomain(ctx, subdomain)
	})
}

// Invalidate drops the cached entries of t. Call it after every change to a
// tenant's routing keys, activation or deletion.
func (tc *TenantCache) Invalidate(ctx context.Context, t *models.Tenant) {
	if tc == nil || tc.client == nil || t == nil {
		return
	}
	keys := []string{tenantKeyPrefix + "slug:" + normalizeKey(t.Slug)}
	if t.Subdomain != nil {
		keys = append(keys, tenantKeyPrefix+"subdomain:"+normalizeKey(*t.Subdomain))
	}
	err := tc.breaker.Call(func() error {
		return tc.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		tc.log.WithError(err).WithField("tenant_id", t.LogicalID).Warn("Failed to invalidate tenant cache")
	}
}

func (tc *TenantCache) resolve(ctx context.Context, key string, load func() (*models.Tenant, error)) (uuid.UUID, error) {
	key = tenantKeyPrefix + key
	if ref, ok := tc.get(ctx, key); ok {
		return ref, nil
	}

	t, err := load()
	if err != nil {
		return uuid.Nil, err
	}
	if !t.IsActive {
		return uuid.Nil, ErrTenantSuspended
	}

	tc.set(ctx, key, t.LogicalID)
	return t.LogicalID, nil
}

func (tc *TenantCache) get(ctx context.Context, key string) (uuid.UUID, bool) {
	if tc.client == nil {
		return uuid.Nil, false
	}
	var val string
	err := tc.breaker.Call(func() error {
		var err error
		val, err = tc.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrCircuitOpen) {
			tc.log.WithError(err).Warn("Tenant cache read failed")
		}
		return uuid.Nil, false
	}
	if val == "" {
		return uuid.Nil, false
	}
	ref, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}
	return ref, true
}

func (tc *TenantCache) set(ctx context.Context, key string, ref uuid.UUID) {
	if tc.client == nil {
		return
	}
	err := tc.breaker.Call(func() error {
		return tc.client.Set(ctx, key, ref.String(), tc.ttl).Err()
	})
	if err != nil && !errors.Is(err, ErrCircuitOpen) {
		tc.log.WithError(err).Warn("Tenant cache write failed")
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var _ TenantLookup = (*repository.TenantRepository)(nil)
