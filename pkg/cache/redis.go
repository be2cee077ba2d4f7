package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-registration-api/pkg/config"
)

// Namespace prefixes every key written by this service.
const Namespace = "course-registration"

const pingTimeout = 3 * time.Second

// NewRedis connects to Redis and verifies the connection. The caller owns the
// returned client and must close it.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return client, nil
}

// Key joins parts under the service namespace, e.g. Key("catalog", "course", "CS301").
func Key(parts ...string) string {
	return Namespace + ":" + strings.Join(parts, ":")
}
