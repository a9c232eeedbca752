package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client stays nil when REDIS_URL is empty or unreachable; callers treat a
// nil client as "no mirror".
var Client *redis.Client

// ErrMiss is returned by GetJSON when the key does not exist.
var ErrMiss = errors.New("cache miss")

// InitRedis connects to addr, which may be a redis:// URL or a bare host:port.
func InitRedis(ctx context.Context, addr string) *redis.Client {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		log.Println("redis disabled: REDIS_URL not set")
		Client = nil
		return nil
	}

	opts, err := optionsFor(addr)
	if err != nil {
		log.Printf("Warning: invalid REDIS_URL %q: %v", addr, err)
		Client = nil
		return nil
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: failed to connect to Redis, continuing without it: %v", err)
		_ = client.Close()
		Client = nil
		return nil
	}
	log.Println("Connected to Redis")
	Client = client
	return client
}

func optionsFor(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr}, nil
}

func SetJSON(ctx context.Context, client *redis.Client, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func GetJSON(ctx context.Context, client *redis.Client, key string, out any) error {
	if client == nil {
		return ErrMiss
	}
	payload, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
