package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	dom "github.com/adrian-cabangis/taskboard/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	keyListAll  = "task:list:all"
	keyListUser = "task:list:user:"
)

// TaskCache caches the admin list and per-user task lists in Redis.
// Every task write invalidates the admin list plus the lists of the
// owners involved.
type TaskCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTaskCache returns a new TaskCache.
func NewTaskCache(rdb *redis.Client, ttl time.Duration) *TaskCache {
	return &TaskCache{rdb: rdb, ttl: ttl}
}

// GetAll returns the cached admin list, or nil on miss.
func (c *TaskCache) GetAll(ctx context.Context) ([]dom.Task, error) {
	return c.get(ctx, keyListAll)
}

// SetAll stores the admin list.
func (c *TaskCache) SetAll(ctx context.Context, list []dom.Task) error {
	return c.set(ctx, keyListAll, list)
}

// GetUser returns the cached list for one owner, or nil on miss.
func (c *TaskCache) GetUser(ctx context.Context, userID int64) ([]dom.Task, error) {
	return c.get(ctx, keyListUser+strconv.FormatInt(userID, 10))
}

// SetUser stores one owner's list.
func (c *TaskCache) SetUser(ctx context.Context, userID int64, list []dom.Task) error {
	return c.set(ctx, keyListUser+strconv.FormatInt(userID, 10), list)
}

// Invalidate drops the admin list and the lists of the given owners.
// A reassignment passes both the old and the new owner.
func (c *TaskCache) Invalidate(ctx context.Context, userIDs ...int64) error {
	keys := make([]string, 0, len(userIDs)+1)
	keys = append(keys, keyListAll)
	for _, id := range userIDs {
		keys = append(keys, keyListUser+strconv.FormatInt(id, 10))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *TaskCache) get(ctx context.Context, key string) ([]dom.Task, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []dom.Task
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *TaskCache) set(ctx context.Context, key string, list []dom.Task) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
