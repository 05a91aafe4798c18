package task

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/Oniqq60/taskflow/internal/document"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeRepo struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]Task
	assignments map[uuid.UUID][]uuid.UUID
	names       func(uuid.UUID) string
	stamps      int
	listCalls   int
	// beforeUpdate runs inside UpdateStatus before the status check
	beforeUpdate func(id uuid.UUID)
}

func newFakeRepo(names func(uuid.UUID) string) *fakeRepo {
	return &fakeRepo{
		tasks:       make(map[uuid.UUID]Task),
		assignments: make(map[uuid.UUID][]uuid.UUID),
		names:       names,
	}
}

func (f *fakeRepo) CreateTask(_ context.Context, t Task, assigneeIDs []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Assignees = nil
	f.tasks[t.ID] = t
	f.assignments[t.ID] = append([]uuid.UUID(nil), assigneeIDs...)
	return nil
}

func (f *fakeRepo) GetTask(_ context.Context, id uuid.UUID) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getLocked(id)
}

func (f *fakeRepo) getLocked(id uuid.UUID) (Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, newError(ErrNotFound, "task %s", id)
	}
	for _, userID := range f.assignments[id] {
		t.Assignees = append(t.Assignees, Assignee{UserID: userID, Name: f.names(userID)})
	}
	return t, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, expected Status, upd StatusUpdate) (Task, error) {
	if f.beforeUpdate != nil {
		f.beforeUpdate(id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, newError(ErrNotFound, "task %s", id)
	}
	if t.Status != expected {
		return Task{}, newError(ErrConflict, "task %s is no longer %s", id, expected)
	}

	t.Status = upd.To
	t.UpdatedAt = upd.At
	if upd.FilePath != nil {
		t.FilePath = upd.FilePath
	}
	if upd.SubmittedAt != nil {
		t.SubmittedAt = upd.SubmittedAt
	}
	if upd.ApprovedBy != nil {
		t.ApprovedBy = upd.ApprovedBy
		t.ApprovedAt = upd.ApprovedAt
		f.stamps++
	}
	f.tasks[id] = t
	return f.getLocked(id)
}

func (f *fakeRepo) TaskList(_ context.Context, q ListQuery) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	var out []Task
	for id := range f.tasks {
		t, _ := f.getLocked(id)
		if q.AssigneeID != nil && !t.HasAssignee(*q.AssigneeID) {
			continue
		}
		if len(q.Statuses) > 0 && !containsStatus(q.Statuses, t.Status) {
			continue
		}
		if q.After != nil && !after(t, *q.After) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return after(out[j], Cursor{DueDate: out[i].DueDate, ID: out[i].ID})
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeRepo) AssignmentCounts(_ context.Context) (map[uuid.UUID]AssignmentCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]AssignmentCounts)
	for taskID, users := range f.assignments {
		for _, userID := range users {
			c := out[userID]
			if f.tasks[taskID].Status == StatusCompleted {
				c.Completed++
			} else {
				c.Active++
			}
			out[userID] = c
		}
	}
	return out, nil
}

func (f *fakeRepo) snapshot(id uuid.UUID) Task {
	t, _ := f.GetTask(context.Background(), id)
	return t
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func after(t Task, c Cursor) bool {
	if !t.DueDate.Equal(c.DueDate) {
		return t.DueDate.After(c.DueDate)
	}
	return bytes.Compare(t.ID[:], c.ID[:]) > 0
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type fakeProfiles struct {
	profiles map[uuid.UUID]auth.Profile
	err      error
}

func (f *fakeProfiles) Resolve(_ context.Context, userID uuid.UUID) (auth.Profile, error) {
	if f.err != nil {
		return auth.Profile{}, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return auth.Profile{}, auth.ErrUserNotFound
	}
	return p, nil
}

func (f *fakeProfiles) List(_ context.Context) ([]auth.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]auth.Profile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeProfiles) name(id uuid.UUID) string {
	return f.profiles[id].Name
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	failErr error
}

func (m *memStorage) Save(_ context.Context, key, contentType string, data []byte) (document.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return document.ObjectInfo{}, m.failErr
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = append([]byte(nil), data...)
	return document.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (m *memStorage) Get(_ context.Context, key string) (io.ReadCloser, document.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, document.ObjectInfo{}, document.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), document.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) Bucket() string { return "task-files" }

type fakeEvents struct {
	mu     sync.Mutex
	events []TaskEvent
	err    error
}

func (f *fakeEvents) SendTaskEvent(_ context.Context, event TaskEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEvents) Close() error { return nil }

func (f *fakeEvents) sent() []TaskEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TaskEvent(nil), f.events...)
}

type fakeSubmissions struct {
	mu      sync.Mutex
	records []document.Submission
}

func (f *fakeSubmissions) Record(_ context.Context, s document.Submission) (document.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, s)
	return s, nil
}

func (f *fakeSubmissions) ListByTask(_ context.Context, taskID string) ([]document.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []document.Submission
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].TaskID == taskID {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

var errBackendDown = errors.New("connection refused")

// fixture wires the service to in-memory collaborators with one admin and
// two members.
type fixture struct {
	svc         TaskService
	repo        *fakeRepo
	profiles    *fakeProfiles
	storage     *memStorage
	events      *fakeEvents
	submissions *fakeSubmissions
	admin       auth.Profile
	u1          auth.Profile
	u2          auth.Profile
	clock       *fakeClock
}

// fakeClock advances by a second on every reading.
type fakeClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(time.Second)
	return c.at
}

func newFixture(pageSize int) *fixture {
	admin := auth.Profile{UserID: uuid.New(), Name: "Boss", Email: "boss@example.com", Role: auth.RoleAdmin}
	u1 := auth.Profile{UserID: uuid.New(), Name: "Ann", Email: "ann@example.com", Role: auth.RoleMember}
	u2 := auth.Profile{UserID: uuid.New(), Name: "Bob", Email: "bob@example.com", Role: auth.RoleMember}

	profiles := &fakeProfiles{profiles: map[uuid.UUID]auth.Profile{
		admin.UserID: admin,
		u1.UserID:    u1,
		u2.UserID:    u2,
	}}
	f := &fixture{
		repo:        newFakeRepo(profiles.name),
		profiles:    profiles,
		storage:     &memStorage{},
		events:      &fakeEvents{},
		submissions: &fakeSubmissions{},
		admin:       admin,
		u1:          u1,
		u2:          u2,
		clock:       &fakeClock{at: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	logger, _ := test.NewNullLogger()
	f.svc = NewTaskService(Dependencies{
		Repo:        f.repo,
		Profiles:    profiles,
		Storage:     f.storage,
		Submissions: f.submissions,
		Events:      f.events,
		Logger:      logger,
		MaxFileSize: 1 << 20,
		PageSize:    pageSize,
		Now:         f.clock.Now,
	})
	return f
}

var zipContent = []byte("PK\x03\x04fake-archive-body")
