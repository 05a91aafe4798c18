package task

import (
	"context"
	"iter"
	"slices"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/google/uuid"
)

// TaskSeq is a lazy sequence of tasks ordered by (due_date, id). Each range
// over it starts a fresh read from the store.
type TaskSeq = iter.Seq2[Task, error]

type View string

const (
	ViewActive    View = "active"
	ViewCompleted View = "completed"
	ViewPending   View = "pending"
	ViewAll       View = "all"
)

var viewStatuses = map[View][]Status{
	ViewActive:    {StatusTodo, StatusInProgress, StatusPendingApproval},
	ViewCompleted: {StatusCompleted},
	ViewPending:   {StatusPendingApproval},
	ViewAll:       allStatuses,
}

func ParseView(raw string) (View, error) {
	if raw == "" {
		return "", nil
	}
	v := View(raw)
	if _, ok := viewStatuses[v]; !ok {
		return "", newError(ErrValidation, "unknown view %q", raw)
	}
	return v, nil
}

// ListOptions: an empty View means active, or all when Status is set.
type ListOptions struct {
	View   View
	Status *Status
}

func (s *taskService) ListTasks(ctx context.Context, opts ListOptions, actor auth.Profile) TaskSeq {
	return func(yield func(Task, error) bool) {
		query, err := s.listQuery(opts, actor)
		if err != nil {
			yield(Task{}, err)
			return
		}
		if len(query.Statuses) == 0 {
			return
		}

		for {
			page, err := s.repo.TaskList(ctx, query)
			if err != nil {
				yield(Task{}, err)
				return
			}
			for _, t := range page {
				if !yield(t, nil) {
					return
				}
			}
			if len(page) < query.Limit {
				return
			}
			last := page[len(page)-1]
			query.After = &Cursor{DueDate: last.DueDate, ID: last.ID}
		}
	}
}

func (s *taskService) listQuery(opts ListOptions, actor auth.Profile) (ListQuery, error) {
	if actor.UserID == uuid.Nil {
		return ListQuery{}, newError(ErrAuthorization, "no acting user")
	}

	view := opts.View
	if view == "" {
		view = ViewActive
		if opts.Status != nil {
			view = ViewAll
		}
	}
	statuses, ok := viewStatuses[view]
	if !ok {
		return ListQuery{}, newError(ErrValidation, "unknown view %q", view)
	}
	if view == ViewPending && !actor.IsAdmin() {
		return ListQuery{}, newError(ErrAuthorization, "pending approvals are visible to admins only")
	}

	if opts.Status != nil {
		if !opts.Status.Valid() {
			return ListQuery{}, newError(ErrValidation, "unknown status %q", *opts.Status)
		}
		if slices.Contains(statuses, *opts.Status) {
			statuses = []Status{*opts.Status}
		} else {
			statuses = nil
		}
	}

	q := ListQuery{Statuses: statuses, Limit: s.pageSize}
	if !actor.IsAdmin() {
		id := actor.UserID
		q.AssigneeID = &id
	}
	return q, nil
}
