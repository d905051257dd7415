// Package ratelimit throttles requests per shop and client with Redis-backed counters.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Strategy names.
const (
	StrategySliding = "sliding"
	StrategyFixed   = "fixed"
)

// Result is the state of a key after one request was counted.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts a request against key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// New builds the limiter for strategy. Unknown strategies fall back to the sliding window.
func New(strategy string, client *redis.Client, prefix string, window time.Duration, max int) (Limiter, error) {
	if strings.EqualFold(strings.TrimSpace(strategy), StrategyFixed) {
		store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return nil, err
		}
		return NewFixedWindow(store, window, max), nil
	}
	return &SlidingWindow{Client: client, Prefix: prefix, Window: window, Max: max}, nil
}

// FixedWindow delegates counting to ulule/limiter.
type FixedWindow struct {
	limiter *limiter.Limiter
}

// NewFixedWindow allows max requests per window using store.
func NewFixedWindow(store limiter.Store, window time.Duration, max int) *FixedWindow {
	return &FixedWindow{limiter: limiter.New(store, limiter.Rate{Period: window, Limit: int64(max)})}
}

// Allow implements Limiter.
func (f *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	lctx, err := f.limiter.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}
