package pagecache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "jjbank:page:"

// Redis stores each page under its own key and remembers the keys of a user
// in a set, so revalidation does not need to scan.
type Redis struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, addr, password string, ttl time.Duration) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("in internal/pagecache/redis.go/NewRedis(): error while `client.Ping()` calling: %w", err)
	}

	return &Redis{client: client, ttl: ttl}, nil
}

func pageKey(userID, page string) string {
	return keyPrefix + userID + ":" + page
}

func indexKey(userID string) string {
	return keyPrefix + userID
}

func (r *Redis) Get(ctx context.Context, userID, page string) ([]byte, bool) {
	body, err := r.client.Get(ctx, pageKey(userID, page)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logCacheError("page cache read failed", userID, err)
		}
		return nil, false
	}

	return body, true
}

func (r *Redis) Set(ctx context.Context, userID, page string, body []byte) {
	key := pageKey(userID, page)

	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, body, r.ttl)
		pipe.SAdd(ctx, indexKey(userID), key)
		if r.ttl > 0 {
			pipe.Expire(ctx, indexKey(userID), r.ttl)
		}
		return nil
	})
	if err != nil {
		logCacheError("page cache write failed", userID, err)
	}
}

func (r *Redis) Revalidate(ctx context.Context, userIDs ...string) {
	for _, userID := range userIDs {
		keys, err := r.client.SMembers(ctx, indexKey(userID)).Result()
		if err != nil {
			logCacheError("page cache index read failed", userID, err)
			continue
		}
		keys = append(keys, indexKey(userID))
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			logCacheError("page cache revalidation failed", userID, err)
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
