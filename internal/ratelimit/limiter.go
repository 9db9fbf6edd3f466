// Package ratelimit provides Redis-backed throttling using INCR + EXPIRE
// fixed windows. The coordinator applies it per session to chat messages and
// match requests, and per IP to new connections. The limiter fails open: a
// Redis outage, or running without Redis at all, never drops legitimate
// traffic.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a throttling policy: the Redis key prefix, the maximum count
// allowed in the window, and the window duration.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

var (
	// RuleChat allows 10 chat messages per 10 seconds per connection.
	RuleChat = Rule{Key: "rl:chat:", Limit: 10, Window: 10 * time.Second}

	// RuleMatch allows 10 start-matching requests per minute per connection.
	RuleMatch = Rule{Key: "rl:match:", Limit: 10, Window: 1 * time.Minute}

	// RuleConnect allows 5 new connections per minute per IP.
	RuleConnect = Rule{Key: "rl:conn:", Limit: 5, Window: 1 * time.Minute}
)

// Limiter performs rate limit checks against Redis. A nil *Limiter is valid
// and allows everything, so callers need no special casing when Redis is
// not configured.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow reports whether the identifier is within the rule's limit,
// incrementing its counter. On Redis errors it fails open.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) bool {
	if l == nil || l.client == nil {
		return true
	}

	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] incr %s: %v (failing open)", key, err)
		return true
	}

	// First increment defines the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] expire %s: %v", key, err)
		}
	}

	return count <= int64(rule.Limit)
}
