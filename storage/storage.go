package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"dayplan-api/domain"
)

// Storage persists tasks in an Azure Table, one partition per user.
type Storage struct {
	taskTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: svc.NewClient(tasksTable)}, nil
}

type taskEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	Notes     string `json:"Notes"`
	Status    string `json:"Status"`
	Order     int    `json:"Order"`
	Date      string `json:"Date"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

func decodeTask(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	status, err := domain.ParseStatus(ent.Status)
	if err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:     ent.RowKey,
		Title:  ent.Title,
		Notes:  ent.Notes,
		Status: status,
		Order:  ent.Order,
		Date:   ent.Date,
		UserID: ent.PartitionKey,
	}
	if ent.CreatedAt != "" {
		if task.CreatedAt, err = time.Parse(time.RFC3339Nano, ent.CreatedAt); err != nil {
			return domain.Task{}, err
		}
	}
	if ent.UpdatedAt != "" {
		if task.UpdatedAt, err = time.Parse(time.RFC3339Nano, ent.UpdatedAt); err != nil {
			return domain.Task{}, err
		}
	}
	return task, nil
}

// escapeFilter doubles single quotes so interpolated values cannot break out
// of the OData filter expression.
func escapeFilter(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func dateFilter(userID, date string) string {
	return "PartitionKey eq '" + escapeFilter(userID) + "' and Date eq '" + escapeFilter(date) + "'"
}

func rangeFilter(userID, start, end string) string {
	return "PartitionKey eq '" + escapeFilter(userID) + "' and Date ge '" + escapeFilter(start) + "' and Date le '" + escapeFilter(end) + "'"
}

func (s *Storage) queryTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTask(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// FetchTasksForDate retrieves all tasks a user has on one calendar day,
// ordered by their manual order value. Ties keep a deterministic secondary
// ordering by creation time then id.
func (s *Storage) FetchTasksForDate(ctx context.Context, userID, date string) ([]domain.Task, error) {
	if userID == "" {
		return nil, storeErr("fetch", ErrMissingUser)
	}
	tasks, err := s.queryTasks(ctx, dateFilter(userID, date))
	if err != nil {
		return nil, storeErr("fetch", err)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// FetchTasksInRange retrieves all tasks a user has between two day keys
// inclusive, ascending by date then order.
func (s *Storage) FetchTasksInRange(ctx context.Context, userID, start, end string) ([]domain.Task, error) {
	if userID == "" {
		return nil, storeErr("fetch range", ErrMissingUser)
	}
	tasks, err := s.queryTasks(ctx, rangeFilter(userID, start, end))
	if err != nil {
		return nil, storeErr("fetch range", err)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Date != tasks[j].Date {
			return tasks[i].Date < tasks[j].Date
		}
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// GetTask retrieves a single task by id.
func (s *Storage) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	if userID == "" {
		return domain.Task{}, storeErr("get", ErrMissingUser)
	}
	ent, err := s.taskTable.GetEntity(ctx, userID, taskID, nil)
	if err != nil {
		return domain.Task{}, storeErr("get", mapNotFound(err))
	}
	task, err := decodeTask(ent.Value)
	if err != nil {
		return domain.Task{}, storeErr("get", err)
	}
	return task, nil
}

// CreateTask inserts a new task. The store assigns the id, defaults the
// status to thought and stamps both timestamps. When the draft has no order,
// the task is appended after the day's existing tasks.
func (s *Storage) CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (domain.Task, error) {
	if userID == "" {
		return domain.Task{}, storeErr("create", ErrMissingUser)
	}
	order := 0
	if draft.Order != nil {
		order = *draft.Order
	} else {
		existing, err := s.FetchTasksForDate(ctx, userID, draft.Date)
		if err != nil {
			return domain.Task{}, err
		}
		order = len(existing)
	}
	now := time.Now().UTC()
	ent := taskEntity{
		Entity:    aztables.Entity{PartitionKey: userID, RowKey: uuid.NewString()},
		Title:     draft.Title,
		Notes:     draft.Notes,
		Status:    string(domain.StatusThought),
		Order:     order,
		Date:      draft.Date,
		CreatedAt: now.Format(time.RFC3339Nano),
		UpdatedAt: now.Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, storeErr("create", err)
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, storeErr("create", err)
	}
	return domain.Task{
		ID:        ent.RowKey,
		Title:     ent.Title,
		Notes:     ent.Notes,
		Status:    domain.StatusThought,
		Order:     order,
		Date:      ent.Date,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type taskMergeEntity struct {
	PartitionKey string  `json:"PartitionKey"`
	RowKey       string  `json:"RowKey"`
	Title        *string `json:"Title,omitempty"`
	Notes        *string `json:"Notes,omitempty"`
	Status       *string `json:"Status,omitempty"`
	Order        *int    `json:"Order,omitempty"`
	UpdatedAt    string  `json:"UpdatedAt"`
}

// UpdateTask merges the given fields into an existing task and restamps its
// update time. CreatedAt, UserID and Date are never written here.
func (s *Storage) UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	if userID == "" {
		return domain.Task{}, storeErr("update", ErrMissingUser)
	}
	if upd.Empty() {
		return domain.Task{}, storeErr("update", ErrEmptyUpdate)
	}
	merge := taskMergeEntity{
		PartitionKey: userID,
		RowKey:       taskID,
		Title:        upd.Title,
		Notes:        upd.Notes,
		Order:        upd.Order,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if upd.Status != nil {
		v := string(*upd.Status)
		merge.Status = &v
	}
	payload, err := json.Marshal(merge)
	if err != nil {
		return domain.Task{}, storeErr("update", err)
	}
	et := azcore.ETagAny
	opts := &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}
	if _, err := s.taskTable.UpdateEntity(ctx, payload, opts); err != nil {
		return domain.Task{}, storeErr("update", mapNotFound(err))
	}
	return s.GetTask(ctx, userID, taskID)
}

// DeleteTask removes a task and returns its last state. Order values of the
// surviving tasks are left untouched, so gaps accumulate over time.
func (s *Storage) DeleteTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	if userID == "" {
		return domain.Task{}, storeErr("delete", ErrMissingUser)
	}
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.DeleteEntity(ctx, userID, taskID, nil); err != nil {
		return domain.Task{}, storeErr("delete", mapNotFound(err))
	}
	return task, nil
}

func mapNotFound(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 404 {
		return ErrNotFound
	}
	return err
}
