package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupService makes sure a chat message is turned into at most one
// Submission, even when the gateway redelivers it or several bot replicas see it.
type DedupService struct {
	redis     *redis.Client
	ttl       time.Duration
	keyPrefix string
}

func NewDedupService(client *redis.Client, ttl time.Duration) *DedupService {
	return &DedupService{
		redis:     client,
		ttl:       ttl,
		keyPrefix: "orderbot:message:",
	}
}

// Claim returns true for the first caller of a message id within the TTL.
func (s *DedupService) Claim(ctx context.Context, messageID string) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.keyPrefix+messageID, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message %s: %w", messageID, err)
	}
	return ok, nil
}
