package storage

import (
	"context"
	"errors"
	"testing"

	"dayplan-api/domain"
)

func TestDecodeTask(t *testing.T) {
	data := []byte(`{
		"PartitionKey": "user1",
		"RowKey": "task1",
		"Title": "Write report",
		"Notes": "draft first",
		"Status": "working",
		"Order": 2,
		"Date": "2024-03-05",
		"CreatedAt": "2024-03-05T08:00:00Z",
		"UpdatedAt": "2024-03-05T09:30:00Z"
	}`)
	task, err := decodeTask(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ID != "task1" || task.UserID != "user1" {
		t.Fatalf("unexpected identity fields: %#v", task)
	}
	if task.Status != domain.StatusWorking || task.Order != 2 || task.Date != "2024-03-05" {
		t.Fatalf("unexpected task fields: %#v", task)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.Before(task.CreatedAt) {
		t.Fatalf("unexpected timestamps: %#v", task)
	}
}

func TestDecodeTaskNormalizesLegacyStatus(t *testing.T) {
	data := []byte(`{"PartitionKey":"u","RowKey":"t","Title":"x","Status":"completed","Order":0,"Date":"2024-01-01"}`)
	task, err := decodeTask(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Status != domain.StatusDone {
		t.Fatalf("expected legacy completed to map to done, got %q", task.Status)
	}
}

func TestDecodeTaskRejectsUnknownStatus(t *testing.T) {
	data := []byte(`{"PartitionKey":"u","RowKey":"t","Title":"x","Status":"blocked","Order":0,"Date":"2024-01-01"}`)
	if _, err := decodeTask(data); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestFilterValuesEscapeQuotes(t *testing.T) {
	got := dateFilter("o'brien|auth0", "2024-03-05")
	want := "PartitionKey eq 'o''brien|auth0' and Date eq '2024-03-05'"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	got = rangeFilter("o'brien|auth0", "2024-03-01", "2024-03-07")
	want = "PartitionKey eq 'o''brien|auth0' and Date ge '2024-03-01' and Date le '2024-03-07'"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestOperationsFailFastWithoutUser(t *testing.T) {
	s := &Storage{}
	ctx := context.Background()

	if _, err := s.FetchTasksForDate(ctx, "", "2024-01-01"); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("fetch: expected ErrMissingUser, got %v", err)
	}
	if _, err := s.FetchTasksInRange(ctx, "", "2024-01-01", "2024-01-07"); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("fetch range: expected ErrMissingUser, got %v", err)
	}
	if _, err := s.GetTask(ctx, "", "t1"); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("get: expected ErrMissingUser, got %v", err)
	}
	if _, err := s.CreateTask(ctx, "", domain.TaskDraft{Title: "x", Date: "2024-01-01"}); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("create: expected ErrMissingUser, got %v", err)
	}
	if _, err := s.UpdateTask(ctx, "", "t1", domain.TaskUpdate{}); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("update: expected ErrMissingUser, got %v", err)
	}
	if _, err := s.DeleteTask(ctx, "", "t1"); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("delete: expected ErrMissingUser, got %v", err)
	}
}

func TestUpdateTaskRejectsEmptyUpdate(t *testing.T) {
	s := &Storage{}
	if _, err := s.UpdateTask(context.Background(), "user1", "t1", domain.TaskUpdate{}); !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}
}

func TestStoreErrorWrapsCause(t *testing.T) {
	err := storeErr("create", ErrMissingUser)
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StoreError, got %T", err)
	}
	if se.Op != "create" {
		t.Fatalf("unexpected op %q", se.Op)
	}
	if !errors.Is(err, ErrMissingUser) {
		t.Fatal("expected wrapped sentinel to be reachable via errors.Is")
	}
}
