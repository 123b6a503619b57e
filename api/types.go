package api

import (
	"context"

	"dayplan-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchTasksForDate(ctx context.Context, userID, date string) ([]domain.Task, error)
	FetchTasksInRange(ctx context.Context, userID, start, end string) ([]domain.Task, error)
	CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) (domain.Task, error)
}

// Authenticator is implemented by types able to resolve identities from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
	UserFromAuthHeader(string) (domain.User, error)
}

// Deduper prevents reprocessing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails so the
	// client may retry.
	Remove(ctx context.Context, userID, key string) error
}

// Publisher announces task changes to every service instance.
type Publisher interface {
	PublishChange(ctx context.Context, userID, date string) error
}
