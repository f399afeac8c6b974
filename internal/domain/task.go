package domain

import "time"

// TaskStatus is the lifecycle state of a task. Transitions are not
// restricted: an admin may move a task to any status at any time.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusOngoing   TaskStatus = "ongoing"
	StatusCompleted TaskStatus = "completed"
	StatusCancelled TaskStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// TaskPriority is the urgency of a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is assigned to exactly one user. Tasks are never hard-deleted;
// there is no delete endpoint.
type Task struct {
	ID          int64
	UserID      int64
	Title       string
	Description string
	Deadline    time.Time
	Status      TaskStatus
	Priority    TaskPriority

	CreatedAt time.Time
	UpdatedAt time.Time

	// Eager-loaded relations. User is populated on list queries,
	// Attachments on list and detail queries.
	User        *User
	Attachments []Attachment
}
