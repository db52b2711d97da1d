package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/david/subsidy-matcher/internal/metrics"
	"github.com/david/subsidy-matcher/internal/models"
)

const activeKey = "catalog:active"

// Source yields the active candidate set for one match computation.
type Source interface {
	FetchActive(ctx context.Context) ([]models.SubsidyCandidate, error)
}

// Cache is a read-through layer over a Source. Redis trouble never fails a
// request: every error path falls back to the underlying source.
type Cache struct {
	source Source
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewCache wraps source. A nil client disables caching entirely.
func NewCache(source Source, client *redis.Client, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{source: source, client: client, ttl: ttl, log: log}
}

func (c *Cache) FetchActive(ctx context.Context) ([]models.SubsidyCandidate, error) {
	if c.client == nil {
		metrics.CatalogFetchTotal.WithLabelValues("bypass").Inc()
		return c.source.FetchActive(ctx)
	}

	payload, err := c.client.Get(ctx, activeKey).Result()
	if err == nil {
		var cached []models.SubsidyCandidate
		if uerr := json.Unmarshal([]byte(payload), &cached); uerr == nil {
			metrics.CatalogFetchTotal.WithLabelValues("hit").Inc()
			return cached, nil
		}
		// A payload written by an older build; refresh it below.
		c.log.Warn("discarding unreadable catalog cache entry", zap.String("key", activeKey))
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("catalog cache read failed", zap.Error(err))
	}

	candidates, err := c.source.FetchActive(ctx)
	if err != nil {
		metrics.CatalogFetchTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.CatalogFetchTotal.WithLabelValues("miss").Inc()

	if data, merr := json.Marshal(candidates); merr == nil {
		if serr := c.client.Set(ctx, activeKey, data, c.ttl).Err(); serr != nil {
			c.log.Warn("catalog cache write failed", zap.Error(serr))
		}
	}
	return candidates, nil
}

// Invalidate drops the cached candidate set, forcing the next fetch to hit
// the store. Used after catalog imports.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, activeKey).Err()
}
