package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/Oniqq60/taskflow/internal/document"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type TaskService interface {
	CreateTask(ctx context.Context, input CreateTaskInput, actor auth.Profile) (Task, error)
	GetTask(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, to Status, actor auth.Profile) (Task, error)
	Start(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error)
	Approve(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error)
	Reject(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error)
	Reopen(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error)
	UploadArtifact(ctx context.Context, id uuid.UUID, file Artifact, actor auth.Profile) (Task, error)
	DownloadArtifact(ctx context.Context, id uuid.UUID, actor auth.Profile) (ArtifactDownload, error)
	ListTasks(ctx context.Context, opts ListOptions, actor auth.Profile) TaskSeq
	TeamRoster(ctx context.Context, actor auth.Profile) ([]RosterEntry, error)
	Submissions(ctx context.Context, id uuid.UUID, actor auth.Profile) ([]document.Submission, error)
}

// ProfileDirectory resolves user ids to profiles.
type ProfileDirectory interface {
	Resolve(ctx context.Context, userID uuid.UUID) (auth.Profile, error)
	List(ctx context.Context) ([]auth.Profile, error)
}

type CreateTaskInput struct {
	Title       string
	Description string
	AssigneeIDs []uuid.UUID
	DueDate     string
}

type Artifact struct {
	FileName string
	Content  []byte
}

type ArtifactDownload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

type RosterEntry struct {
	Profile        auth.Profile `json:"profile"`
	ActiveTasks    int          `json:"active_tasks"`
	CompletedTasks int          `json:"completed_tasks"`
}

type Dependencies struct {
	Repo        TaskRepository
	Profiles    ProfileDirectory
	Storage     document.ObjectStorage
	Submissions document.SubmissionLog
	Events      KafkaProducer
	Logger      logrus.FieldLogger
	MaxFileSize int64
	PageSize    int
	Now         func() time.Time
}

const (
	defaultPageSize = 50
	storageTimeout  = 30 * time.Second
	sideEffectLimit = 5 * time.Second
)

type taskService struct {
	repo        TaskRepository
	profiles    ProfileDirectory
	storage     document.ObjectStorage
	submissions document.SubmissionLog
	events      KafkaProducer
	logger      logrus.FieldLogger
	maxFileSize int64
	pageSize    int
	now         func() time.Time
}

func NewTaskService(deps Dependencies) TaskService {
	s := &taskService{
		repo:        deps.Repo,
		profiles:    deps.Profiles,
		storage:     deps.Storage,
		submissions: deps.Submissions,
		events:      deps.Events,
		logger:      deps.Logger,
		maxFileSize: deps.MaxFileSize,
		pageSize:    deps.PageSize,
		now:         deps.Now,
	}
	if s.pageSize <= 0 {
		s.pageSize = defaultPageSize
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	return s
}

func (s *taskService) CreateTask(ctx context.Context, input CreateTaskInput, actor auth.Profile) (Task, error) {
	if !actor.IsAdmin() {
		s.deny(actor, uuid.Nil, "create task")
		return Task{}, newError(ErrAuthorization, "only an admin may create tasks")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Task{}, newError(ErrValidation, "title is required")
	}
	dueDate, err := ParseDueDate(input.DueDate)
	if err != nil {
		return Task{}, err
	}
	assigneeIDs := dedupe(input.AssigneeIDs)
	if len(assigneeIDs) == 0 {
		return Task{}, newError(ErrValidation, "at least one assignee is required")
	}

	assignees := make([]Assignee, 0, len(assigneeIDs))
	for _, userID := range assigneeIDs {
		p, err := s.profiles.Resolve(ctx, userID)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				return Task{}, newError(ErrValidation, "assignee %s does not exist", userID)
			}
			return Task{}, classifyLookupError(err)
		}
		assignees = append(assignees, Assignee{UserID: p.UserID, Name: p.Name})
	}

	now := s.now()
	t := Task{
		ID:          uuid.New(),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		DueDate:     dueDate,
		Status:      StatusTodo,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, t, assigneeIDs); err != nil {
		s.logger.WithError(err).Error("failed to create task")
		return Task{}, err
	}
	t.Assignees = assignees

	s.logger.WithFields(logrus.Fields{"task_id": t.ID, "actor_id": actor.UserID, "assignees": len(assignees)}).
		Info("task created")
	return t, nil
}

func (s *taskService) GetTask(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error) {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if err := s.authorizeMember(t, actor); err != nil {
		return Task{}, err
	}
	return t, nil
}

// ChangeStatus moves a task along one edge of the lifecycle graph. Submission
// is only possible through UploadArtifact.
func (s *taskService) ChangeStatus(ctx context.Context, id uuid.UUID, to Status, actor auth.Profile) (Task, error) {
	if !to.Valid() {
		return Task{}, newError(ErrValidation, "unknown status %q", to)
	}

	current, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if err := s.authorizeMember(current, actor); err != nil {
		return Task{}, err
	}

	tr, ok := LookupTransition(current.Status, to)
	if !ok {
		if to == StatusCompleted && !actor.IsAdmin() {
			s.deny(actor, id, "complete task")
			return Task{}, newError(ErrAuthorization, "only an admin may complete a task")
		}
		return Task{}, newError(ErrInvalidTransition, "%s -> %s", current.Status, to)
	}
	if tr.AdminOnly && !actor.IsAdmin() {
		s.deny(actor, id, string(tr.Action))
		return Task{}, newError(ErrAuthorization, "only an admin may %s a task", tr.Action)
	}
	if tr.Action == ActionSubmit {
		return Task{}, newError(ErrInvalidTransition, "submitting for approval requires an artifact upload")
	}

	return s.apply(ctx, current, tr, actor, StatusUpdate{})
}

func (s *taskService) Start(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error) {
	return s.transition(ctx, id, ActionStart, actor)
}

func (s *taskService) Approve(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error) {
	return s.transition(ctx, id, ActionApprove, actor)
}

func (s *taskService) Reject(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error) {
	return s.transition(ctx, id, ActionReject, actor)
}

func (s *taskService) Reopen(ctx context.Context, id uuid.UUID, actor auth.Profile) (Task, error) {
	return s.transition(ctx, id, ActionReopen, actor)
}

// transition runs a named action; unlike ChangeStatus it only accepts the
// action's own source status.
func (s *taskService) transition(ctx context.Context, id uuid.UUID, action Action, actor auth.Profile) (Task, error) {
	tr := transitionFor(action)
	if tr.AdminOnly && !actor.IsAdmin() {
		s.deny(actor, id, string(action))
		return Task{}, newError(ErrAuthorization, "only an admin may %s a task", action)
	}

	current, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if err := s.authorizeMember(current, actor); err != nil {
		return Task{}, err
	}
	if current.Status != tr.From {
		return Task{}, newError(ErrInvalidTransition, "cannot %s a task that is %s", action, current.Status)
	}
	return s.apply(ctx, current, tr, actor, StatusUpdate{})
}

func (s *taskService) UploadArtifact(ctx context.Context, id uuid.UUID, file Artifact, actor auth.Profile) (Task, error) {
	current, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !current.HasAssignee(actor.UserID) {
		s.deny(actor, id, "upload artifact")
		return Task{}, newError(ErrAuthorization, "only an assignee may upload an artifact")
	}
	if current.Status != StatusInProgress {
		return Task{}, newError(ErrInvalidTransition, "cannot submit a task that is %s", current.Status)
	}

	fileName := document.SanitizeFilename(file.FileName)
	if err := document.ValidateArchive(fileName, file.Content, s.maxFileSize); err != nil {
		return Task{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	key := current.ID.String() + "/" + fileName
	saveCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	replaced, err := s.storage.Exists(saveCtx, key)
	if err != nil {
		replaced = true
	}
	info, err := s.storage.Save(saveCtx, key, document.ArchiveContentType, file.Content)
	cancel()
	if err != nil {
		s.logger.WithError(err).WithField("task_id", id).Error("artifact upload failed")
		return Task{}, fmt.Errorf("%w: store artifact: %w", ErrTransient, err)
	}

	submittedAt := s.now()
	updated, err := s.apply(ctx, current, transitionFor(ActionSubmit), actor, StatusUpdate{
		At:          submittedAt,
		FilePath:    &key,
		SubmittedAt: &submittedAt,
	})
	if err != nil {
		s.discardOrphan(ctx, id, key, replaced)
		return Task{}, err
	}

	s.recordSubmission(ctx, document.Submission{
		TaskID:      id.String(),
		UserID:      actor.UserID.String(),
		FileName:    fileName,
		ObjectKey:   key,
		Bucket:      s.storage.Bucket(),
		Size:        info.Size,
		Checksum:    info.Checksum,
		SubmittedAt: submittedAt,
	})
	return updated, nil
}

func (s *taskService) DownloadArtifact(ctx context.Context, id uuid.UUID, actor auth.Profile) (ArtifactDownload, error) {
	t, err := s.GetTask(ctx, id, actor)
	if err != nil {
		return ArtifactDownload{}, err
	}
	if t.FilePath == nil || *t.FilePath == "" {
		return ArtifactDownload{}, newError(ErrNotFound, "task %s has no artifact", id)
	}

	body, info, err := s.storage.Get(ctx, *t.FilePath)
	if err != nil {
		if errors.Is(err, document.ErrObjectNotFound) {
			return ArtifactDownload{}, newError(ErrNotFound, "artifact %s", *t.FilePath)
		}
		return ArtifactDownload{}, fmt.Errorf("%w: read artifact: %w", ErrTransient, err)
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = document.ArchiveContentType
	}
	return ArtifactDownload{
		FileName:    (*t.FilePath)[strings.LastIndex(*t.FilePath, "/")+1:],
		ContentType: contentType,
		Size:        info.Size,
		Body:        body,
	}, nil
}

func (s *taskService) TeamRoster(ctx context.Context, actor auth.Profile) ([]RosterEntry, error) {
	if actor.UserID == uuid.Nil {
		return nil, newError(ErrAuthorization, "no acting user")
	}

	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, classifyLookupError(err)
	}
	counts, err := s.repo.AssignmentCounts(ctx)
	if err != nil {
		return nil, err
	}

	roster := make([]RosterEntry, 0, len(profiles))
	for _, p := range profiles {
		c := counts[p.UserID]
		roster = append(roster, RosterEntry{Profile: p, ActiveTasks: c.Active, CompletedTasks: c.Completed})
	}
	return roster, nil
}

func (s *taskService) Submissions(ctx context.Context, id uuid.UUID, actor auth.Profile) ([]document.Submission, error) {
	if _, err := s.GetTask(ctx, id, actor); err != nil {
		return nil, err
	}
	if s.submissions == nil {
		return []document.Submission{}, nil
	}
	history, err := s.submissions.ListByTask(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("%w: submission history: %w", ErrTransient, err)
	}
	return history, nil
}

// discardOrphan removes a blob written for a submission that never reached
// the task row. An overwritten key may still be referenced, so it stays.
func (s *taskService) discardOrphan(ctx context.Context, id uuid.UUID, key string, replaced bool) {
	entry := s.logger.WithFields(logrus.Fields{"task_id": id, "object_key": key})
	if replaced {
		entry.Warn("artifact stored but task was not updated")
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectLimit)
	defer cancel()
	if err := s.storage.Delete(cleanupCtx, key); err != nil {
		entry.WithError(err).Warn("failed to remove orphaned artifact")
		return
	}
	entry.Info("orphaned artifact removed")
}

// apply performs the conditional update; the approval stamp is written in
// the same statement as the status change.
func (s *taskService) apply(ctx context.Context, current Task, tr Transition, actor auth.Profile, upd StatusUpdate) (Task, error) {
	upd.To = tr.To
	if upd.At.IsZero() {
		upd.At = s.now()
	}
	if tr.Action == ActionApprove {
		approvedAt := upd.At
		approvedBy := actor.UserID
		upd.ApprovedBy = &approvedBy
		upd.ApprovedAt = &approvedAt
	}

	updated, err := s.repo.UpdateStatus(ctx, current.ID, tr.From, upd)
	if err != nil {
		entry := s.logger.WithError(err).WithFields(logrus.Fields{"task_id": current.ID, "action": tr.Action})
		if errors.Is(err, ErrConflict) {
			entry.Warn("task changed concurrently")
		} else {
			entry.Error("failed to update task status")
		}
		return Task{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"task_id":  updated.ID,
		"actor_id": actor.UserID,
		"action":   tr.Action,
		"from":     tr.From,
		"status":   updated.Status,
	}).Info("task status changed")

	s.publish(ctx, updated, tr, actor)
	return updated, nil
}

func (s *taskService) authorizeMember(t Task, actor auth.Profile) error {
	if actor.UserID == uuid.Nil {
		return newError(ErrAuthorization, "no acting user")
	}
	if actor.IsAdmin() || t.HasAssignee(actor.UserID) {
		return nil
	}
	s.deny(actor, t.ID, "access task")
	return newError(ErrAuthorization, "user %s is not assigned to task %s", actor.UserID, t.ID)
}

func (s *taskService) deny(actor auth.Profile, taskID uuid.UUID, op string) {
	s.logger.WithFields(logrus.Fields{"actor_id": actor.UserID, "task_id": taskID, "op": op}).
		Warn("operation not authorized")
}

// publish and recordSubmission run after the commit; a failure is logged and
// never undoes the transition.
func (s *taskService) publish(ctx context.Context, t Task, tr Transition, actor auth.Profile) {
	if s.events == nil {
		return
	}
	event := TaskEvent{
		TaskID:    t.ID.String(),
		Title:     t.Title,
		ActorID:   actor.UserID.String(),
		Action:    tr.Action,
		From:      tr.From,
		To:        tr.To,
		Timestamp: s.now(),
	}
	if t.FilePath != nil {
		event.FilePath = *t.FilePath
	}
	for _, id := range t.AssigneeIDs() {
		event.Assignees = append(event.Assignees, id.String())
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectLimit)
	defer cancel()
	if err := s.events.SendTaskEvent(sendCtx, event); err != nil {
		s.logger.WithError(err).WithField("task_id", t.ID).Warn("failed to publish task event")
	}
}

func (s *taskService) recordSubmission(ctx context.Context, sub document.Submission) {
	if s.submissions == nil {
		return
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectLimit)
	defer cancel()
	if _, err := s.submissions.Record(recCtx, sub); err != nil {
		s.logger.WithError(err).WithField("task_id", sub.TaskID).Warn("failed to record submission")
	}
}

func classifyLookupError(err error) error {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: profile lookup: %w", ErrTransient, err)
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
