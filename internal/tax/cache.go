package tax

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/obs"
)

// CachedResolver wraps a RateResolver with Redis caching so repeated lookups
// for the same category and location skip the upstream collaborator. Cache
// failures degrade to the inner resolver; they never fail a calculation.
type CachedResolver struct {
	Inner  RateResolver
	Client *redis.Client
	TTL    time.Duration
	Prefix string
	OnErr  func(error)
}

// Rate implements RateResolver.
func (c *CachedResolver) Rate(ctx context.Context, category, location string) (decimal.Decimal, error) {
	if c.Client == nil {
		return c.Inner.Rate(ctx, category, location)
	}
	key := c.key(category, location)

	cached, err := c.Client.Get(ctx, key).Result()
	if err == nil {
		rate, parseErr := decimal.NewFromString(cached)
		if parseErr == nil {
			countLookup("hit")
			return rate, nil
		}
		// A readable but unparsable entry still counts as a failed lookup.
		countLookup("error")
		c.report(fmt.Errorf("corrupt cached rate for %s: %w", key, parseErr))
	} else if err == redis.Nil {
		countLookup("miss")
	} else {
		countLookup("error")
		c.report(err)
	}

	rate, err := c.Inner.Rate(ctx, category, location)
	if err != nil {
		return decimal.Zero, err
	}
	if setErr := c.Client.Set(ctx, key, rate.String(), c.ttl()).Err(); setErr != nil {
		c.report(setErr)
	}
	return rate, nil
}

func (c *CachedResolver) key(category, location string) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "taxrate:"
	}
	return prefix + category + ":" + location
}

func (c *CachedResolver) ttl() time.Duration {
	if c.TTL <= 0 {
		return 5 * time.Minute
	}
	return c.TTL
}

func (c *CachedResolver) report(err error) {
	if c.OnErr != nil {
		c.OnErr(err)
	}
}

func countLookup(result string) {
	if obs.TaxRateLookupTotal != nil {
		obs.TaxRateLookupTotal.WithLabelValues(result).Inc()
	}
}
