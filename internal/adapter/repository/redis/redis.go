// Package redis puts a cache-aside layer in front of a link repository.
// Links are cached by short key as JSON; lookups by long URL and listings
// always go to the backing repository. Cache failures are logged and never
// fail the call.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/short-links/internal/entity"
)

const (
	DefaultTTL = time.Hour

	keyPrefix     = "link:"
	scanBatchSize = 100
)

type linkRepository interface {
	Create(ctx context.Context, link *entity.Link) (*entity.Link, error)
	GetByShortKey(ctx context.Context, shortKey string) (*entity.Link, error)
	GetByLongURL(ctx context.Context, longURL string) (*entity.Link, error)
	Update(ctx context.Context, link *entity.Link) (*entity.Link, error)
	Delete(ctx context.Context, shortKey string) error
	DeleteAll(ctx context.Context) error
	ListAll(ctx context.Context) ([]*entity.Link, error)
}

type cacheClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
}

type cachedLink struct {
	ShortKey  string    `json:"short_key"`
	LongURL   string    `json:"long_url"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Clicks    int64     `json:"clicks"`
}

func (c *cachedLink) toEntity() *entity.Link {
	return &entity.Link{
		ShortKey:  c.ShortKey,
		LongURL:   c.LongURL,
		TargetURL: c.TargetURL,
		CreatedAt: c.CreatedAt,
		ExpiresAt: c.ExpiresAt,
		Clicks:    c.Clicks,
	}
}

func toCachedLink(link *entity.Link) *cachedLink {
	return &cachedLink{
		ShortKey:  link.ShortKey,
		LongURL:   link.LongURL,
		TargetURL: link.TargetURL,
		CreatedAt: link.CreatedAt,
		ExpiresAt: link.ExpiresAt,
		Clicks:    link.Clicks,
	}
}

type CachedLinkRepository struct {
	repo   linkRepository
	client cacheClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedLinkRepository(repo linkRepository, client cacheClient, ttl time.Duration, logger *slog.Logger) *CachedLinkRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &CachedLinkRepository{
		repo:   repo,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(shortKey string) string {
	return keyPrefix + shortKey
}

func (r *CachedLinkRepository) Create(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "adapter.repository.redis.CachedLinkRepository.Create"

	res, err := r.repo.Create(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.store(ctx, op, res)

	return res, nil
}

func (r *CachedLinkRepository) GetByShortKey(ctx context.Context, shortKey string) (*entity.Link, error) {
	const op = "adapter.repository.redis.CachedLinkRepository.GetByShortKey"

	if link, ok := r.load(ctx, op, shortKey); ok {
		return link, nil
	}

	link, err := r.repo.GetByShortKey(ctx, shortKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.store(ctx, op, link)

	return link, nil
}

func (r *CachedLinkRepository) GetByLongURL(ctx context.Context, longURL string) (*entity.Link, error) {
	const op = "adapter.repository.redis.CachedLinkRepository.GetByLongURL"

	link, err := r.repo.GetByLongURL(ctx, longURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

func (r *CachedLinkRepository) Update(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "adapter.repository.redis.CachedLinkRepository.Update"

	res, err := r.repo.Update(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.store(ctx, op, res)

	return res, nil
}

func (r *CachedLinkRepository) Delete(ctx context.Context, shortKey string) error {
	const op = "adapter.repository.redis.CachedLinkRepository.Delete"

	if err := r.repo.Delete(ctx, shortKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.client.Del(ctx, cacheKey(shortKey)).Err(); err != nil {
		r.logger.Warn("failed to invalidate cached link", "op", op, "short_key", shortKey, "err", err)
	}

	return nil
}

func (r *CachedLinkRepository) DeleteAll(ctx context.Context) error {
	const op = "adapter.repository.redis.CachedLinkRepository.DeleteAll"

	if err := r.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.invalidateAll(ctx); err != nil {
		r.logger.Warn("failed to invalidate cached links", "op", op, "err", err)
	}

	return nil
}

func (r *CachedLinkRepository) ListAll(ctx context.Context) ([]*entity.Link, error) {
	const op = "adapter.repository.redis.CachedLinkRepository.ListAll"

	links, err := r.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return links, nil
}

func (r *CachedLinkRepository) load(ctx context.Context, op, shortKey string) (*entity.Link, bool) {
	data, err := r.client.Get(ctx, cacheKey(shortKey)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			r.logger.Warn("failed to read cached link", "op", op, "short_key", shortKey, "err", err)
		}
		return nil, false
	}

	var link cachedLink
	if err := json.Unmarshal(data, &link); err != nil {
		r.logger.Warn("failed to decode cached link", "op", op, "short_key", shortKey, "err", err)
		return nil, false
	}

	return link.toEntity(), true
}

func (r *CachedLinkRepository) store(ctx context.Context, op string, link *entity.Link) {
	data, err := json.Marshal(toCachedLink(link))
	if err != nil {
		r.logger.Warn("failed to encode link", "op", op, "short_key", link.ShortKey, "err", err)
		return
	}

	if err := r.client.Set(ctx, cacheKey(link.ShortKey), data, r.ttl).Err(); err != nil {
		r.logger.Warn("failed to cache link", "op", op, "short_key", link.ShortKey, "err", err)
	}
}

func (r *CachedLinkRepository) invalidateAll(ctx context.Context) error {
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cached links: %w", err)
		}

		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cached links: %w", err)
			}
		}

		if next == 0 {
			return nil
		}
		cursor = next
	}
}
