package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the closed set of labels a task can carry. Transitions between
// statuses are unrestricted.
type Status string

const (
	StatusThought Status = "thought"
	StatusPlanned Status = "planned"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
)

// Valid reports whether s is one of the canonical status values.
func (s Status) Valid() bool {
	switch s {
	case StatusThought, StatusPlanned, StatusWorking, StatusDone:
		return true
	}
	return false
}

// ParseStatus converts a raw status string into a canonical Status. Records
// written by an earlier release used a binary pending/completed vocabulary;
// those values are mapped onto the current one so old rows stay readable.
func ParseStatus(raw string) (Status, error) {
	switch v := Status(strings.ToLower(strings.TrimSpace(raw))); v {
	case StatusThought, StatusPlanned, StatusWorking, StatusDone:
		return v, nil
	case "pending":
		return StatusThought, nil
	case "completed":
		return StatusDone, nil
	default:
		return "", fmt.Errorf("unknown task status %q", raw)
	}
}

// Task is a single to-do item scoped to one user and one calendar day.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	Status    Status    `json:"status"`
	Order     int       `json:"order"`
	Date      string    `json:"date"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskDraft carries the user-supplied fields of a new task. Order is optional;
// when nil the store assigns the next slot for the task's day.
type TaskDraft struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
	Date  string `json:"date"`
	Order *int   `json:"order,omitempty"`
}

// TaskUpdate is a partial update. Nil fields are left untouched. CreatedAt,
// UserID and Date are deliberately absent: they are immutable after creation.
type TaskUpdate struct {
	Title  *string `json:"title,omitempty"`
	Notes  *string `json:"notes,omitempty"`
	Status *Status `json:"status,omitempty"`
	Order  *int    `json:"order,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Notes == nil && u.Status == nil && u.Order == nil
}
