package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"dayplan-api/domain"
)

type fakeBackend struct {
	tasks      []domain.Task
	fetchCalls int
	rangeCalls int
	created    domain.Task
	err        error
}

func (f *fakeBackend) FetchTasksForDate(ctx context.Context, userID, date string) ([]domain.Task, error) {
	f.fetchCalls++
	return f.tasks, f.err
}

func (f *fakeBackend) FetchTasksInRange(ctx context.Context, userID, start, end string) ([]domain.Task, error) {
	f.rangeCalls++
	return f.tasks, f.err
}

func (f *fakeBackend) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	return f.created, f.err
}

func (f *fakeBackend) CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error) {
	return f.created, f.err
}

func (f *fakeBackend) UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	return f.created, f.err
}

func (f *fakeBackend) DeleteTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	return f.created, f.err
}

func setupCache(t *testing.T, base backend) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(base, client, time.Minute), m
}

func TestCacheFetchTasksForDateReadThrough(t *testing.T) {
	base := &fakeBackend{tasks: []domain.Task{{ID: "1", Title: "t", Status: domain.StatusThought, Date: "2024-03-05"}}}
	cache, _ := setupCache(t, base)
	ctx := context.Background()

	first, err := cache.FetchTasksForDate(ctx, "user1", "2024-03-05")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if len(first) != 1 || first[0].ID != "1" {
		t.Fatalf("unexpected tasks: %#v", first)
	}
	second, err := cache.FetchTasksForDate(ctx, "user1", "2024-03-05")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("unexpected tasks on cached read: %#v", second)
	}
	if base.fetchCalls != 1 {
		t.Fatalf("expected one backend fetch, got %d", base.fetchCalls)
	}
}

func TestCacheMutationInvalidatesReads(t *testing.T) {
	base := &fakeBackend{tasks: []domain.Task{{ID: "1"}}, created: domain.Task{ID: "2", Date: "2024-03-05"}}
	cache, _ := setupCache(t, base)
	ctx := context.Background()

	if _, err := cache.FetchTasksForDate(ctx, "user1", "2024-03-05"); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	if _, err := cache.CreateTask(ctx, "user1", domain.TaskDraft{Title: "x", Date: "2024-03-05"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cache.FetchTasksForDate(ctx, "user1", "2024-03-05"); err != nil {
		t.Fatalf("read after create: %v", err)
	}
	if base.fetchCalls != 2 {
		t.Fatalf("expected cache miss after mutation, fetch calls = %d", base.fetchCalls)
	}
}

func TestCacheMutationDoesNotAffectOtherUsers(t *testing.T) {
	base := &fakeBackend{tasks: []domain.Task{{ID: "1"}}, created: domain.Task{ID: "2"}}
	cache, _ := setupCache(t, base)
	ctx := context.Background()

	if _, err := cache.FetchTasksForDate(ctx, "alice", "2024-03-05"); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	if _, err := cache.DeleteTask(ctx, "bob", "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.FetchTasksForDate(ctx, "alice", "2024-03-05"); err != nil {
		t.Fatalf("read: %v", err)
	}
	if base.fetchCalls != 1 {
		t.Fatalf("expected alice's cache to survive bob's mutation, fetch calls = %d", base.fetchCalls)
	}
}

func TestCacheRangeReadThrough(t *testing.T) {
	base := &fakeBackend{tasks: []domain.Task{{ID: "1", Date: "2024-03-04"}}}
	cache, _ := setupCache(t, base)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := cache.FetchTasksInRange(ctx, "user1", "2024-03-01", "2024-03-07"); err != nil {
			t.Fatalf("range fetch %d: %v", i, err)
		}
	}
	if base.rangeCalls != 1 {
		t.Fatalf("expected one backend range fetch, got %d", base.rangeCalls)
	}
}

func TestCacheDegradesWhenRedisDown(t *testing.T) {
	base := &fakeBackend{tasks: []domain.Task{{ID: "1"}}}
	cache, m := setupCache(t, base)
	m.Close()
	ctx := context.Background()

	tasks, err := cache.FetchTasksForDate(ctx, "user1", "2024-03-05")
	if err != nil {
		t.Fatalf("expected fallthrough to backend, got %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
}

func TestCacheNilRedisPassesThrough(t *testing.T) {
	base := &fakeBackend{tasks: []domain.Task{{ID: "1"}}}
	cache := NewCache(base, nil, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.FetchTasksForDate(ctx, "user1", "2024-03-05"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if base.fetchCalls != 2 {
		t.Fatalf("expected every read to hit backend, got %d", base.fetchCalls)
	}
}
