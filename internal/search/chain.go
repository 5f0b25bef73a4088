package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/cache"
	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/utils"
)

// Chain tries strategies in order and returns the first non-empty result.
// An empty result, not an error, is what moves the chain along.
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger
}

func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, logger: logging.OrNop(logger)}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Search(ctx context.Context, query string) []Result {
	for i, s := range c.strategies {
		results := s.Search(ctx, query)
		if len(results) > 0 {
			c.logger.Info("search satisfied",
				zap.String("strategy", s.Name()), zap.Int("results", len(results)))
			return results
		}
		if i < len(c.strategies)-1 {
			c.logger.Info("search strategy empty, falling back",
				zap.String("strategy", s.Name()), zap.String("next", c.strategies[i+1].Name()))
		}
	}
	return []Result{}
}

// Cached memoises non-empty results of another strategy by normalised query.
type Cached struct {
	next   Strategy
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(next Strategy, store cache.Store, ttl time.Duration, logger *zap.Logger) *Cached {
	return &Cached{next: next, store: store, ttl: ttl, logger: logging.OrNop(logger)}
}

func (c *Cached) Name() string { return "cached_" + c.next.Name() }

func (c *Cached) Search(ctx context.Context, query string) []Result {
	key := "search_results:" + utils.HashKey(utils.NormalizeQuery(query))
	if results, ok := cache.GetJSON[[]Result](ctx, c.store, key); ok {
		c.logger.Debug("search cache hit", zap.String("query", query))
		return results
	}

	results := c.next.Search(ctx, query)
	if len(results) > 0 {
		cache.SetJSON(ctx, c.store, key, results, c.ttl, c.logger)
	}
	return results
}
