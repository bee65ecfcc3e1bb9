package risk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/okian/blindfold/pkg/metrics"
)

// Scorer evaluates portfolio payloads.
type Scorer interface {
	Score(ctx context.Context, payload string) Score
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, payload string) Score

func (f ScorerFunc) Score(ctx context.Context, payload string) Score { return f(ctx, payload) }

// Engine is the uncached Scorer.
var Engine Scorer = ScorerFunc(func(_ context.Context, payload string) Score {
	s := Evaluate(payload)
	metrics.RecordRiskScore(string(s.Tier))
	return s
})

// Option configures a CachedScorer.
type Option func(*cachedScorer)

// WithTTL sets how long a score stays cached.
func WithTTL(ttl time.Duration) Option {
	return func(c *cachedScorer) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCleanupInterval sets how often expired scores are purged.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *cachedScorer) {
		if d > 0 {
			c.cleanup = d
		}
	}
}

// WithNext sets the scorer consulted on a miss.
func WithNext(next Scorer) Option {
	return func(c *cachedScorer) {
		if next != nil {
			c.next = next
		}
	}
}

type cachedScorer struct {
	ttl     time.Duration
	cleanup time.Duration
	next    Scorer
	cache   *cache.Cache
}

// NewCachedScorer memoises scores keyed by the payload's sha256. Evaluation
// is pure, so a cached score is always the score the engine would return.
func NewCachedScorer(opts ...Option) Scorer {
	c := &cachedScorer{
		ttl:     5 * time.Minute,
		cleanup: 10 * time.Minute,
		next:    Engine,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = cache.New(c.ttl, c.cleanup)
	return c
}

func (c *cachedScorer) Score(ctx context.Context, payload string) Score {
	sum := sha256.Sum256([]byte(payload))
	key := hex.EncodeToString(sum[:])
	if v, ok := c.cache.Get(key); ok {
		metrics.RecordRiskCacheHit()
		return v.(Score)
	}
	metrics.RecordRiskCacheMiss()
	s := c.next.Score(ctx, payload)
	c.cache.SetDefault(key, s)
	return s
}
