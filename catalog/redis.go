package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisOptions selects the server and the keys used for the catalog
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string // set holding stored names
	Channel  string // pub/sub channel receiving newly stored names
}

// Redis keeps the catalog in a redis set and publishes additions
type Redis struct {
	client  redis.Cmdable
	key     string
	channel string
}

// NewRedis connects and pings the server
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &Redis{client: client, key: opts.Key, channel: opts.Channel}, nil
}

func (r *Redis) Seed(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	members := make([]any, len(names))
	for i, name := range names {
		members[i] = name
	}
	if err := r.client.SAdd(ctx, r.key, members...).Err(); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

func (r *Redis) Announce(ctx context.Context, name string) (bool, error) {
	added, err := r.client.SAdd(ctx, r.key, name).Result()
	if err != nil {
		return false, fmt.Errorf("announce %s: %w", name, err)
	}
	if added == 0 {
		return false, nil
	}
	if r.channel != "" {
		if err := r.client.Publish(ctx, r.channel, name).Err(); err != nil {
			return true, fmt.Errorf("publish %s: %w", name, err)
		}
	}
	return true, nil
}

// List returns the members sorted by name. Redis sets carry no insertion order.
func (r *Redis) List(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the client connection when it owns one
func (r *Redis) Close() error {
	if c, ok := r.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
