package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskRepository interface {
	CreateTask(ctx context.Context, t Task, assigneeIDs []uuid.UUID) error
	GetTask(ctx context.Context, id uuid.UUID) (Task, error)
	// UpdateStatus applies upd only while the row still has status expected.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected Status, upd StatusUpdate) (Task, error)
	TaskList(ctx context.Context, q ListQuery) ([]Task, error)
	AssignmentCounts(ctx context.Context) (map[uuid.UUID]AssignmentCounts, error)
}

type StatusUpdate struct {
	To Status
	// At: время перехода, пишется в updated_at
	At          time.Time
	FilePath    *string
	SubmittedAt *time.Time
	ApprovedBy  *uuid.UUID
	ApprovedAt  *time.Time
}

type Cursor struct {
	DueDate time.Time
	ID      uuid.UUID
}

// ListQuery selects one page ordered by (due_date, id).
type ListQuery struct {
	AssigneeID *uuid.UUID
	Statuses   []Status
	After      *Cursor
	Limit      int
}

type AssignmentCounts struct {
	Active    int
	Completed int
}

type taskRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) CreateTask(ctx context.Context, t Task, assigneeIDs []uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&t).Error; err != nil {
			return err
		}
		rows := make([]Assignment, 0, len(assigneeIDs))
		for _, userID := range assigneeIDs {
			rows = append(rows, Assignment{TaskID: t.ID, UserID: userID, CreatedAt: t.CreatedAt})
		}
		return tx.Create(&rows).Error
	})
	return classifyStoreError(err, "create task")
}

func (r *taskRepository) GetTask(ctx context.Context, id uuid.UUID) (Task, error) {
	var t Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return Task{}, classifyStoreError(err, "task "+id.String())
	}
	tasks := []Task{t}
	if err := r.loadAssignees(ctx, tasks); err != nil {
		return Task{}, err
	}
	return tasks[0], nil
}

func (r *taskRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected Status, upd StatusUpdate) (Task, error) {
	at := upd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	// Используем map, чтобы обновлять только переданные поля
	updateMap := map[string]interface{}{
		"status":     upd.To,
		"updated_at": at,
	}
	if upd.FilePath != nil {
		updateMap["file_path"] = *upd.FilePath
	}
	if upd.SubmittedAt != nil {
		updateMap["submitted_at"] = *upd.SubmittedAt
	}
	if upd.ApprovedBy != nil {
		updateMap["approved_by"] = *upd.ApprovedBy
	}
	if upd.ApprovedAt != nil {
		updateMap["approved_at"] = *upd.ApprovedAt
	}

	var updated Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Task{}).Where("id = ? AND status = ?", id, expected).Updates(updateMap)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return newError(ErrNotFound, "task %s", id)
			}
			return newError(ErrConflict, "task %s is no longer %s", id, expected)
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return Task{}, classifyStoreError(err, "update task status")
	}

	tasks := []Task{updated}
	if err := r.loadAssignees(ctx, tasks); err != nil {
		return Task{}, err
	}
	return tasks[0], nil
}

func (r *taskRepository) TaskList(ctx context.Context, q ListQuery) ([]Task, error) {
	var tasks []Task
	tx := r.db.WithContext(ctx).Model(&Task{})

	if q.AssigneeID != nil {
		assigned := r.db.Model(&Assignment{}).Select("task_id").Where("user_id = ?", *q.AssigneeID)
		tx = tx.Where("id IN (?)", assigned)
	}
	if len(q.Statuses) > 0 {
		tx = tx.Where("status IN ?", q.Statuses)
	}
	if q.After != nil {
		tx = tx.Where("(due_date, id) > (?, ?)", q.After.DueDate.Format(dateLayout), q.After.ID)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	if err := tx.Order("due_date ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, classifyStoreError(err, "list tasks")
	}
	if err := r.loadAssignees(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) AssignmentCounts(ctx context.Context) (map[uuid.UUID]AssignmentCounts, error) {
	var rows []struct {
		UserID    uuid.UUID
		Active    int
		Completed int
	}
	err := r.db.WithContext(ctx).
		Table("task_assignments AS ta").
		Select("ta.user_id AS user_id, "+
			"COUNT(*) FILTER (WHERE t.status <> ?) AS active, "+
			"COUNT(*) FILTER (WHERE t.status = ?) AS completed", StatusCompleted, StatusCompleted).
		Joins("JOIN tasks t ON t.id = ta.task_id").
		Group("ta.user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, classifyStoreError(err, "count assignments")
	}

	out := make(map[uuid.UUID]AssignmentCounts, len(rows))
	for _, row := range rows {
		out[row.UserID] = AssignmentCounts{Active: row.Active, Completed: row.Completed}
	}
	return out, nil
}

// loadAssignees fills Assignees for every task with one query.
func (r *taskRepository) loadAssignees(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(tasks))
	index := make(map[uuid.UUID]int, len(tasks))
	for i, t := range tasks {
		ids = append(ids, t.ID)
		index[t.ID] = i
	}

	var rows []struct {
		TaskID uuid.UUID
		UserID uuid.UUID
		Name   string
	}
	err := r.db.WithContext(ctx).
		Table("task_assignments AS ta").
		Select("ta.task_id AS task_id, ta.user_id AS user_id, p.name AS name").
		Joins("JOIN profiles p ON p.id = ta.user_id").
		Where("ta.task_id IN ?", ids).
		Order("p.name ASC, ta.user_id ASC").
		Scan(&rows).Error
	if err != nil {
		return classifyStoreError(err, "load assignees")
	}

	for _, row := range rows {
		i := index[row.TaskID]
		tasks[i].Assignees = append(tasks[i].Assignees, Assignee{UserID: row.UserID, Name: row.Name})
	}
	return nil
}
