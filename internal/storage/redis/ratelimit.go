package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/platter/pkg/httpmiddleware"
)

var _ httpmiddleware.Limiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window httpmiddleware.Limiter shared by every API
// replica. Each key and window gets its own counter.
type RateLimiter struct {
	client redis.Cmdable
	max    int
	period time.Duration
}

// NewRateLimiter allows max requests per period and key.
func NewRateLimiter(client redis.Cmdable, max int, period time.Duration) *RateLimiter {
	return &RateLimiter{client: client, max: max, period: period}
}

func (l *RateLimiter) Limit() int { return l.max }

func (l *RateLimiter) Allow(ctx context.Context, key string, now time.Time) (httpmiddleware.Decision, error) {
	start := now.Truncate(l.period)
	counter := "platter:ratelimit:" + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	_, err := l.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, counter)
		p.PExpire(ctx, counter, l.period)
		return nil
	})
	if err != nil {
		return httpmiddleware.Decision{}, errors.Wrap(err, "count request")
	}

	n := int(incr.Val())
	return httpmiddleware.Decision{
		Allowed:   n <= l.max,
		Remaining: max(l.max-n, 0),
		ResetAt:   start.Add(l.period),
	}, nil
}
