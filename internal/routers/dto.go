package routers

import (
	"fmt"
	"strings"

	"github.com/Oniqq60/taskflow/internal/task"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

type createTaskRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=10000"`
	AssigneeIDs []string `json:"assignee_ids" validate:"required,min=1,dive,uuid"`
	DueDate     string   `json:"due_date" validate:"required"`
}

func (r createTaskRequest) input() task.CreateTaskInput {
	ids := make([]uuid.UUID, 0, len(r.AssigneeIDs))
	for _, raw := range r.AssigneeIDs {
		// формат уже проверен тегом uuid
		ids = append(ids, uuid.MustParse(raw))
	}
	return task.CreateTaskInput{
		Title:       r.Title,
		Description: r.Description,
		AssigneeIDs: ids,
		DueDate:     r.DueDate,
	}
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// taskResponse renders due_date as a calendar date.
type taskResponse struct {
	task.Task
	DueDate string `json:"due_date"`
}

func newTaskResponse(t task.Task) taskResponse {
	return taskResponse{Task: t, DueDate: t.DueDate.Format("2006-01-02")}
}

func describeValidation(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
