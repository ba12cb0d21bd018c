package allocator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"memberbase/pkg/domain"
)

const reservationKeyPrefix = "memberbase:identifier-reservation:"

// RedisReserver coordinates identifier claims across instances with
// SET NX and a TTL. The TTL caps how long a crashed importer can hold a
// candidate hostage.
type RedisReserver struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisReserver constructs a Redis-backed reserver. A non-positive ttl
// falls back to DefaultReservationTTL.
func NewRedisReserver(client redis.Cmdable, ttl time.Duration) *RedisReserver {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &RedisReserver{client: client, ttl: ttl}
}

var _ Reserver = (*RedisReserver)(nil)

func (r *RedisReserver) Reserve(ctx context.Context, identifier domain.Identifier) (bool, error) {
	ok, err := r.client.SetNX(ctx, reservationKey(identifier), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve in redis: %w", err)
	}
	return ok, nil
}

func (r *RedisReserver) Release(ctx context.Context, identifiers ...domain.Identifier) error {
	if len(identifiers) == 0 {
		return nil
	}
	keys := make([]string, len(identifiers))
	for i, identifier := range identifiers {
		keys[i] = reservationKey(identifier)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("release reservations: %w", err)
	}
	return nil
}

func reservationKey(identifier domain.Identifier) string {
	return reservationKeyPrefix + identifier.String()
}
