package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThreadCache caches assembled comment threads per post. A thread is rebuilt
// from a bulk load on every miss, so any mutation on the post's comments only
// has to invalidate; nothing is patched in place.
type ThreadCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewThreadCache(url string, ttl time.Duration) (*ThreadCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	return &ThreadCache{Client: client, TTL: ttl}, nil
}

// Key builds the cache key for one page of one post's thread.
func Key(postID string, page, pageSize int, order string) string {
	return fmt.Sprintf("thread:%s:%d:%d:%s", postID, page, pageSize, order)
}

func (c *ThreadCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}
	val, err := c.Client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *ThreadCache) Set(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, b, c.TTL).Err()
}

// Invalidate drops every cached page for the post.
func (c *ThreadCache) Invalidate(ctx context.Context, postID string) error {
	if c == nil {
		return nil
	}
	iter := c.Client.Scan(ctx, 0, "thread:"+postID+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.Client.Del(ctx, keys...).Err()
}
