package notification

import (
	"fmt"
	"time"

	"github.com/Oniqq60/taskflow/internal/task"
)

type Kind string

const (
	KindSubmitted Kind = "task_submitted"
	KindApproved  Kind = "task_approved"
	KindRejected  Kind = "task_rejected"
	KindReopened  Kind = "task_reopened"
)

// Notification описывает уведомление, которое будет отправлено.
type Notification struct {
	Kind        Kind
	TaskID      string
	ActorID     string
	RecipientID string
	Message     string
	CreatedAt   time.Time
}

type audience int

const (
	audienceNone audience = iota
	audienceAdmins
	audienceAssignees
)

// route decides who hears about an event.
func route(event task.TaskEvent) (Kind, audience) {
	switch event.Action {
	case task.ActionSubmit:
		return KindSubmitted, audienceAdmins
	case task.ActionApprove:
		return KindApproved, audienceAssignees
	case task.ActionReject:
		return KindRejected, audienceAssignees
	case task.ActionReopen:
		return KindReopened, audienceAssignees
	default:
		return "", audienceNone
	}
}

func message(kind Kind, event task.TaskEvent) string {
	title := event.Title
	if title == "" {
		title = event.TaskID
	}
	switch kind {
	case KindSubmitted:
		return fmt.Sprintf("Task %q was submitted for approval (%s)", title, event.FilePath)
	case KindApproved:
		return fmt.Sprintf("Task %q was approved", title)
	case KindRejected:
		return fmt.Sprintf("Task %q was sent back for rework", title)
	case KindReopened:
		return fmt.Sprintf("Task %q was reopened", title)
	}
	return ""
}
