package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgeee/portfolio/api"
	"github.com/redis/go-redis/v9"
)

// Redis provides caching in Redis.
type Redis struct {
	cli      *redis.Client
	postsTTL time.Duration
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working. Cached post lists expire after postsTTL.
func Connect(ctx context.Context, addr string, postsTTL time.Duration) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli:      cli,
		postsTTL: postsTTL,
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

const (
	postsPrefix = "posts"
	// postsMarker exists while a post list is cached, so that an empty list can
	// be told apart from a miss.
	postsMarker = "posts:cached"
	// postsVersion is bumped on every invalidation and never expires. A list
	// read from the database before a bump must not be stored after it.
	postsVersion = "posts:version"
)

// ListPosts returns the cached published posts sorted by creation time in
// descending order, or api.ErrCacheMiss.
func (r *Redis) ListPosts(ctx context.Context) ([]api.Post, error) {
	n, err := r.cli.Exists(ctx, postsMarker).Result()
	if err != nil {
		return nil, fmt.Errorf("exists: %w", err)
	}
	if n == 0 {
		return nil, api.ErrCacheMiss
	}

	keys, err := r.cli.ZRevRange(ctx, postsPrefix, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange: %w", err)
	}

	cmds, err := r.cli.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hgetall: %w", err)
	}

	out := make([]api.Post, 0, len(cmds))
	for _, cmd := range cmds {
		res := cmd.(*redis.MapStringStringCmd)
		if len(res.Val()) == 0 {
			// Expired between the range and the read.
			return nil, api.ErrCacheMiss
		}
		var p post
		if err := res.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, p.APIPost())
	}
	return out, nil
}

// PostsVersion returns the current version of the cached post list. Callers
// read it before loading posts from the database and hand it to StorePosts.
func (r *Redis) PostsVersion(ctx context.Context) (int64, error) {
	v, err := r.cli.Get(ctx, postsVersion).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

var errStale = errors.New("post list is stale")

// StorePosts replaces the cached post list. Each post is stored under
// posts:POST_ID and its key is added to a sorted set scored by creation time.
// Nothing is stored when the list was invalidated after version was read.
func (r *Redis) StorePosts(ctx context.Context, version int64, posts []api.Post) error {
	err := r.cli.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, postsVersion).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("get version: %w", err)
		}
		if current != version {
			return errStale
		}

		old, err := tx.ZRange(ctx, postsPrefix, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("zrange: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, append(old, postsPrefix, postsMarker)...)
			for _, p := range posts {
				key := fmt.Sprintf("%s:%s", postsPrefix, p.ID)
				pipe.HSet(ctx, key, newPost(p))
				pipe.Expire(ctx, key, r.postsTTL)
				pipe.ZAdd(ctx, postsPrefix, redis.Z{
					Score:  float64(p.CreatedAt.UnixNano()),
					Member: key,
				})
			}
			pipe.Expire(ctx, postsPrefix, r.postsTTL)
			pipe.Set(ctx, postsMarker, 1, r.postsTTL)
			return nil
		})
		return err
	}, postsVersion)

	if errors.Is(err, errStale) || errors.Is(err, redis.TxFailedErr) {
		// Invalidated while the list was loading. The next read refills it.
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis store posts: %w", err)
	}
	return nil
}

// InvalidatePosts removes the cached post list and bumps its version.
func (r *Redis) InvalidatePosts(ctx context.Context) error {
	keys, err := r.cli.ZRange(ctx, postsPrefix, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("zrange: %w", err)
	}

	keys = append(keys, postsPrefix, postsMarker)
	_, err = r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, postsVersion)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	return nil
}

// Limiter returns a fixed window rate limiter allowing limit hits per key in
// each window.
func (r *Redis) Limiter(name string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		cli:    r.cli,
		prefix: "rate_limit:" + name + ":",
		limit:  limit,
		window: window,
	}
}
