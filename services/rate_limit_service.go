package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ticketdesk/orderbot/logger"
)

// RateLimiterInterface defines the contract for rate limiting operations.
type RateLimiterInterface interface {
	CheckLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, time.Duration, error)
}

// RateLimitService provides fixed-window rate limiting using Redis.
// It implements the RateLimiterInterface.
type RateLimitService struct {
	redis     *redis.Client
	keyPrefix string
}

func NewRateLimitService(redis *redis.Client) *RateLimitService {
	return &RateLimitService{
		redis:     redis,
		keyPrefix: "orderbot:rate_limit:",
	}
}

// CheckLimit counts one hit on key. It returns false and the remaining window
// once more than limit hits land within duration.
func (s *RateLimitService) CheckLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, time.Duration, error) {
	rKey := s.keyPrefix + key

	pipe := s.redis.Pipeline()
	incr := pipe.Incr(ctx, rKey)
	pipe.ExpireNX(ctx, rKey, duration)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, err
	}

	count := incr.Val()
	if count > int64(limit) {
		ttl, err := s.redis.TTL(ctx, rKey).Result()
		if err != nil {
			return false, 0, err
		}
		return false, ttl, nil
	}

	return true, 0, nil
}

// SubmissionThrottle limits how many submissions one submitter may send per minute.
type SubmissionThrottle struct {
	limiter   RateLimiterInterface
	perMinute int
}

func NewSubmissionThrottle(limiter RateLimiterInterface, perMinute int) *SubmissionThrottle {
	return &SubmissionThrottle{limiter: limiter, perMinute: perMinute}
}

// Allow reports whether submitter may submit now. Limiter errors fail open.
func (t *SubmissionThrottle) Allow(ctx context.Context, submitter string) (bool, time.Duration) {
	ok, retryAfter, err := t.limiter.CheckLimit(ctx, "submitter:"+submitter, t.perMinute, time.Minute)
	if err != nil {
		logger.FromContext(ctx).Warnw("Rate limiter unavailable, allowing submission", "error", err)
		return true, 0
	}
	return ok, retryAfter
}
