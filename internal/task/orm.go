package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusTodo            Status = "todo"
	StatusInProgress      Status = "in_progress"
	StatusPendingApproval Status = "pending_approval"
	StatusCompleted       Status = "completed"
)

var allStatuses = []Status{StatusTodo, StatusInProgress, StatusPendingApproval, StatusCompleted}

func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", newError(ErrValidation, "unknown status %q", raw)
	}
	return s, nil
}

type Task struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Title       string     `json:"title" gorm:"not null"`
	Description string     `json:"description" gorm:"not null;default:''"`
	DueDate     time.Time  `json:"due_date" gorm:"type:date;not null"`
	Status      Status     `json:"status" gorm:"type:varchar(32);not null;default:'todo'"`
	FilePath    *string    `json:"file_path,omitempty" gorm:"type:text"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CreatedBy   uuid.UUID  `json:"created_by" gorm:"type:uuid;not null"`
	ApprovedBy  *uuid.UUID `json:"approved_by,omitempty" gorm:"type:uuid"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"not null;default:now()"`

	Assignees []Assignee `json:"assignees" gorm:"-"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t Task) HasAssignee(userID uuid.UUID) bool {
	for _, a := range t.Assignees {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

func (t Task) AssigneeIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.Assignees))
	for _, a := range t.Assignees {
		ids = append(ids, a.UserID)
	}
	return ids
}

// Assignment связывает задачу с исполнителем (many-to-many).
type Assignment struct {
	TaskID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (Assignment) TableName() string {
	return "task_assignments"
}

type Assignee struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
}

const dateLayout = "2006-01-02"

// ParseDueDate accepts a calendar date or an RFC 3339 timestamp and keeps
// only the date part.
func ParseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, newError(ErrValidation, "due date is required")
	}
	if d, err := time.Parse(dateLayout, raw); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: due date %q must be YYYY-MM-DD or RFC 3339", ErrValidation, raw)
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}
