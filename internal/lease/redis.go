package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jeffconboy/StatEdge/internal/models"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another worker is left alone
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLeaser shares date leases between processes through Redis.
// A lease expires after ttl so a crashed worker cannot hold a date forever.
type RedisLeaser struct {
	client *redis.Client
	season int
	ttl    time.Duration
}

// NewRedisLeaser creates a leaser whose keys are scoped to season
func NewRedisLeaser(client *redis.Client, season int, ttl time.Duration) *RedisLeaser {
	return &RedisLeaser{client: client, season: season, ttl: ttl}
}

// Key returns the Redis key guarding date
func (l *RedisLeaser) Key(date time.Time) string {
	return fmt.Sprintf("statedge:lease:%d:%s", l.season, date.Format(models.DateLayout))
}

// Acquire takes the lease with SET NX and a TTL
func (l *RedisLeaser) Acquire(ctx context.Context, date time.Time) (func(), bool, error) {
	key := l.Key(date)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// the run context may already be cancelled; release regardless
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Failed to release lease")
			}
		})
	}
	return release, true, nil
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", addr).Msg("Successfully connected to redis")
	return client, nil
}
