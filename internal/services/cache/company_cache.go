// Package cache puts a Redis read-through cache in front of company lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/iyunix/go-chatwidget/internal/domain"
	"github.com/iyunix/go-chatwidget/internal/repository"
)

// ErrMiss is returned by KV.Get for absent keys.
var ErrMiss = errors.New("cache: miss")

// KV is the slice of Redis the cache uses.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	rdb redis.Cmdable
}

func NewRedisKV(rdb redis.Cmdable) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// CompanyCache serves companies from KV, loading misses from the store.
// Concurrent misses for one company share a single store read.
type CompanyCache struct {
	kv     KV
	source repository.Store
	ttl    time.Duration
	prefix string
	group  singleflight.Group
	logger Logger
}

func NewCompanyCache(kv KV, source repository.Store, ttl time.Duration, logger Logger) *CompanyCache {
	return &CompanyCache{
		kv:     kv,
		source: source,
		ttl:    ttl,
		prefix: "chatwidget:company:",
		logger: logger,
	}
}

func (c *CompanyCache) key(companyID string) string {
	return c.prefix + companyID
}

func (c *CompanyCache) GetCompanyByID(ctx context.Context, companyID string) (*domain.Company, error) {
	key := c.key(companyID)

	raw, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		var company domain.Company
		if jsonErr := json.Unmarshal(raw, &company); jsonErr == nil {
			return &company, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", "key", key)
	case !errors.Is(err, ErrMiss):
		// A broken cache must not take chats down with it.
		c.logger.Warn("Company cache read failed", "company_id", companyID, "error", err)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		company, err := c.source.GetCompanyByID(ctx, companyID)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(company); err == nil {
			if err := c.kv.Set(ctx, key, payload, c.ttl); err != nil {
				c.logger.Warn("Company cache write failed", "company_id", companyID, "error", err)
			}
		}
		return company, nil
	})
	if err != nil {
		return nil, err
	}
	company := *v.(*domain.Company)
	return &company, nil
}

// Invalidate drops a cached company, e.g. after the admin tooling edits it.
func (c *CompanyCache) Invalidate(ctx context.Context, companyID string) error {
	if err := c.kv.Del(ctx, c.key(companyID)); err != nil {
		return fmt.Errorf("invalidating company %s: %w", companyID, err)
	}
	return nil
}

// Store decorates a repository.Store so company reads go through the cache.
type Store struct {
	repository.Store
	companies *CompanyCache
}

func NewStore(inner repository.Store, companies *CompanyCache) *Store {
	return &Store{Store: inner, companies: companies}
}

func (s *Store) GetCompanyByID(ctx context.Context, companyID string) (*domain.Company, error) {
	return s.companies.GetCompanyByID(ctx, companyID)
}

var _ repository.Store = (*Store)(nil)
