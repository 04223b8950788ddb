package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key this service owns in a shared Redis.
const keyPrefix = "auth:"

const pingTimeout = 3 * time.Second

// Connect accepts either a redis:// or rediss:// URL or a bare host:port.
func Connect(ctx context.Context, target string) (*redis.Client, error) {
	opts, err := clientOptions(target)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

func clientOptions(target string) (*redis.Options, error) {
	target = strings.TrimSpace(target)
	if !strings.Contains(target, "://") {
		return &redis.Options{Addr: target}, nil
	}
	opts, err := redis.ParseURL(target)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}
