package routers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/Oniqq60/taskflow/internal/document"
	"github.com/Oniqq60/taskflow/internal/task"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var (
	adminProfile  = auth.Profile{UserID: uuid.MustParse("00000000-0000-0000-0000-0000000000a1"), Email: "boss@example.com", Name: "Boss", Role: auth.RoleAdmin}
	memberProfile = auth.Profile{UserID: uuid.MustParse("00000000-0000-0000-0000-0000000000b1"), Email: "ann@example.com", Name: "Ann", Role: auth.RoleMember}
)

const (
	adminToken  = "admin-token"
	memberToken = "member-token"
)

// fakeAuth embeds the interface so unused methods panic if reached.
type fakeAuth struct {
	auth.Service

	mu         sync.Mutex
	sessions   map[string]auth.Session
	registered []auth.RegisterInput
	registerFn func(auth.RegisterInput) (auth.Profile, error)
	loginErr   error
	signedOut  []string
	roleErr    error
	sessionErr error
}

func newFakeAuth() *fakeAuth {
	expires := time.Now().Add(time.Hour)
	return &fakeAuth{sessions: map[string]auth.Session{
		adminToken:  {UserID: adminProfile.UserID, Email: adminProfile.Email, Role: auth.RoleAdmin, TokenID: "jti-admin", ExpiresAt: expires},
		memberToken: {UserID: memberProfile.UserID, Email: memberProfile.Email, Role: auth.RoleMember, TokenID: "jti-member", ExpiresAt: expires},
	}}
}

func (f *fakeAuth) Register(_ context.Context, in auth.RegisterInput) (auth.Profile, error) {
	f.mu.Lock()
	f.registered = append(f.registered, in)
	f.mu.Unlock()
	if f.registerFn != nil {
		return f.registerFn(in)
	}
	return auth.Profile{UserID: uuid.New(), Email: in.Email, Name: in.Name, Role: auth.RoleMember}, nil
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (auth.Token, auth.Profile, error) {
	if f.loginErr != nil {
		return auth.Token{}, auth.Profile{}, f.loginErr
	}
	return auth.Token{AccessToken: memberToken, ExpiresAt: time.Now().Add(time.Hour)}, memberProfile, nil
}

func (f *fakeAuth) CurrentSession(_ context.Context, token string) (auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return auth.Session{}, f.sessionErr
	}
	s, ok := f.sessions[token]
	if !ok {
		return auth.Session{}, auth.ErrNoSession
	}
	return s, nil
}

func (f *fakeAuth) SignOut(ctx context.Context, token string) error {
	if _, err := f.CurrentSession(ctx, token); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	f.signedOut = append(f.signedOut, token)
	return nil
}

func (f *fakeAuth) SetRole(_ context.Context, actor auth.Profile, userID uuid.UUID, role auth.Role) (auth.Profile, error) {
	if f.roleErr != nil {
		return auth.Profile{}, f.roleErr
	}
	if !actor.IsAdmin() {
		return auth.Profile{}, auth.ErrForbidden
	}
	return auth.Profile{UserID: userID, Role: role}, nil
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

// fakeTasks records the last call and returns the configured result.
type fakeTasks struct {
	task.TaskService

	mu       sync.Mutex
	calls    []string
	actor    auth.Profile
	created  task.CreateTaskInput
	uploaded task.Artifact
	changed  task.Status
	listOpts task.ListOptions
	result   task.Task
	listed   []task.Task
	listErr  error
	download *task.ArtifactDownload
	roster   []task.RosterEntry
	noSubs   bool
	err      error
}

func (f *fakeTasks) record(op string, actor auth.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	f.actor = actor
}

func (f *fakeTasks) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTasks) reply(id uuid.UUID) (task.Task, error) {
	if f.err != nil {
		return task.Task{}, f.err
	}
	t := f.result
	if t.ID == uuid.Nil {
		t.ID = id
	}
	return t, nil
}

func (f *fakeTasks) CreateTask(_ context.Context, in task.CreateTaskInput, actor auth.Profile) (task.Task, error) {
	f.record("create", actor)
	f.created = in
	return f.reply(uuid.New())
}

func (f *fakeTasks) GetTask(_ context.Context, id uuid.UUID, actor auth.Profile) (task.Task, error) {
	f.record("get", actor)
	return f.reply(id)
}

func (f *fakeTasks) ChangeStatus(_ context.Context, id uuid.UUID, to task.Status, actor auth.Profile) (task.Task, error) {
	f.record("change_status", actor)
	f.changed = to
	return f.reply(id)
}

func (f *fakeTasks) Start(_ context.Context, id uuid.UUID, actor auth.Profile) (task.Task, error) {
	f.record("start", actor)
	return f.reply(id)
}

func (f *fakeTasks) Approve(_ context.Context, id uuid.UUID, actor auth.Profile) (task.Task, error) {
	f.record("approve", actor)
	return f.reply(id)
}

func (f *fakeTasks) Reject(_ context.Context, id uuid.UUID, actor auth.Profile) (task.Task, error) {
	f.record("reject", actor)
	return f.reply(id)
}

func (f *fakeTasks) Reopen(_ context.Context, id uuid.UUID, actor auth.Profile) (task.Task, error) {
	f.record("reopen", actor)
	return f.reply(id)
}

func (f *fakeTasks) UploadArtifact(_ context.Context, id uuid.UUID, file task.Artifact, actor auth.Profile) (task.Task, error) {
	f.record("upload", actor)
	f.uploaded = file
	return f.reply(id)
}

func (f *fakeTasks) DownloadArtifact(_ context.Context, _ uuid.UUID, actor auth.Profile) (task.ArtifactDownload, error) {
	f.record("download", actor)
	if f.err != nil {
		return task.ArtifactDownload{}, f.err
	}
	return *f.download, nil
}

func (f *fakeTasks) ListTasks(_ context.Context, opts task.ListOptions, actor auth.Profile) task.TaskSeq {
	return func(yield func(task.Task, error) bool) {
		f.record("list", actor)
		f.listOpts = opts
		for _, t := range f.listed {
			if !yield(t, nil) {
				return
			}
		}
		if f.listErr != nil {
			yield(task.Task{}, f.listErr)
		}
	}
}

func (f *fakeTasks) TeamRoster(_ context.Context, actor auth.Profile) ([]task.RosterEntry, error) {
	f.record("roster", actor)
	return f.roster, f.err
}

func (f *fakeTasks) Submissions(_ context.Context, id uuid.UUID, actor auth.Profile) ([]document.Submission, error) {
	f.record("submissions", actor)
	if f.err != nil {
		return nil, f.err
	}
	if f.noSubs {
		return nil, nil
	}
	return []document.Submission{{TaskID: id.String(), UserID: memberProfile.UserID.String(), FileName: "report.zip"}}, nil
}

type harness struct {
	auth     *fakeAuth
	profiles *fakeProfiles
	tasks    *fakeTasks
	hook     *test.Hook
	handler  http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	h := &harness{
		auth: newFakeAuth(),
		profiles: &fakeProfiles{profiles: map[uuid.UUID]auth.Profile{
			adminProfile.UserID:  adminProfile,
			memberProfile.UserID: memberProfile,
		}},
		tasks: &fakeTasks{},
		hook:  hook,
	}
	router, err := New(Dependencies{
		Auth:        h.auth,
		Profiles:    h.profiles,
		Tasks:       h.tasks,
		Logger:      logger,
		MaxFileSize: 1 << 20,
	})
	require.NoError(t, err)
	h.handler = router.Handler()
	return h
}

func (h *harness) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) doJSON(method, path, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	return h.do(method, path, token, r, "application/json")
}
