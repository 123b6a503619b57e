package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"dayplan-api/domain"
)

type backend interface {
	FetchTasksForDate(ctx context.Context, userID, date string) ([]domain.Task, error)
	FetchTasksInRange(ctx context.Context, userID, start, end string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (domain.Task, error)
	CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) (domain.Task, error)
}

// Cache wraps a Storage instance with Redis-backed caching for read
// operations. Cache keys embed a per-user generation counter; mutations bump
// the counter, which invalidates every cached read for that user at once.
// Redis failures always degrade to the backing storage.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasksForDate(ctx context.Context, userID, date string) ([]domain.Task, error) {
	key := c.readKey(ctx, userID, "day:"+date)
	if tasks, ok := c.load(ctx, key); ok {
		return tasks, nil
	}
	tasks, err := c.base.FetchTasksForDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, tasks)
	return tasks, nil
}

func (c *Cache) FetchTasksInRange(ctx context.Context, userID, start, end string) ([]domain.Task, error) {
	key := c.readKey(ctx, userID, "range:"+start+":"+end)
	if tasks, ok := c.load(ctx, key); ok {
		return tasks, nil
	}
	tasks, err := c.base.FetchTasksInRange(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, tasks)
	return tasks, nil
}

// GetTask is not cached; single-row reads go straight to the backing store.
func (c *Cache) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	return c.base.GetTask(ctx, userID, taskID)
}

func (c *Cache) CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error) {
	task, err := c.base.CreateTask(ctx, userID, draft)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return task, nil
}

func (c *Cache) UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	task, err := c.base.UpdateTask(ctx, userID, taskID, upd)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return task, nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	task, err := c.base.DeleteTask(ctx, userID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return task, nil
}

// readKey builds a cache key under the user's current generation. A missing
// or unreadable generation falls back to zero, which is only ever wrong in
// the direction of a cache miss.
func (c *Cache) readKey(ctx context.Context, userID, suffix string) string {
	gen := int64(0)
	if c.redis != nil {
		if v, err := c.redis.Get(ctx, genKey(userID)).Int64(); err == nil {
			gen = v
		}
	}
	return "tasks:" + userID + ":" + strconv.FormatInt(gen, 10) + ":" + suffix
}

func (c *Cache) load(ctx context.Context, key string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, key string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, genKey(userID)).Err()
}

func genKey(userID string) string {
	return "tasksgen:" + userID
}
