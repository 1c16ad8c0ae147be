// Package claim reserves output names across hosts that share an output
// directory. Exclusive file creation alone is enough on a local filesystem.
package claim

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Claimer interface {
	// Claim reports whether the caller now owns name.
	Claim(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
}

// Local grants every claim. It is used when a single host owns the output
// directory.
type Local struct{}

func (Local) Claim(context.Context, string) (bool, error) { return true, nil }

func (Local) Release(context.Context, string) error { return nil }

type Redis struct {
	client redis.Cmdable
	prefix string
	owner  string
	ttl    time.Duration
}

func NewRedis(client redis.Cmdable, prefix, owner string, ttl time.Duration) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "pixelbatch:claim"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{
		client: client,
		prefix: prefix,
		owner:  owner,
		ttl:    ttl,
	}
}

func (r *Redis) Claim(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(name), r.owner, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", name, err)
	}
	return ok, nil
}

func (r *Redis) Release(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, r.key(name)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", name, err)
	}
	return nil
}

func (r *Redis) key(name string) string {
	return r.prefix + ":" + filepath.ToSlash(filepath.Clean(name))
}
