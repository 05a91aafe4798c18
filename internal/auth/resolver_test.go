package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProfile(repo *fakeProfileRepo, name string, role Role) Profile {
	p := Profile{UserID: uuid.New(), Email: name + "@example.com", Name: name, Role: role}
	repo.profiles[p.UserID] = p
	return p
}

func TestResolverCachesProfiles(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := newFakeProfileRepo()
	ann := seedProfile(repo, "ann", RoleMember)
	resolver := NewResolver(repo, rdb, time.Second, newTestLogger())

	first, err := resolver.Resolve(context.Background(), ann.UserID)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), ann.UserID)
	require.NoError(t, err)

	assert.Equal(t, ann.Name, first.Name)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, 1, repo.calls())

	require.NoError(t, resolver.Evict(context.Background(), ann.UserID))
	_, err = resolver.Resolve(context.Background(), ann.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls())
}

func TestResolverTimesOut(t *testing.T) {
	repo := newFakeProfileRepo()
	ann := seedProfile(repo, "ann", RoleMember)
	repo.delay = time.Second
	resolver := NewResolver(repo, nil, 20*time.Millisecond, newTestLogger())

	_, err := resolver.Resolve(context.Background(), ann.UserID)
	assert.ErrorIs(t, err, ErrLookupTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolverReportsMissingProfile(t *testing.T) {
	resolver := NewResolver(newFakeProfileRepo(), nil, time.Second, newTestLogger())

	_, err := resolver.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolverWatchEvictsOnRoleChange(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := newFakeProfileRepo()
	sessions := NewSessionStore(rdb)
	svc := NewService(repo, sessions, Options{Secret: testSecret}, newTestLogger())
	resolver := NewResolver(repo, rdb, time.Second, newTestLogger())

	admin := seedProfile(repo, "boss", RoleAdmin)
	ann := seedProfile(repo, "ann", RoleMember)

	cached, err := resolver.Resolve(context.Background(), ann.UserID)
	require.NoError(t, err)
	require.Equal(t, RoleMember, cached.Role)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = resolver.Watch(ctx, svc) }()

	// retry the role change until the watcher is subscribed and has evicted the entry
	require.Eventually(t, func() bool {
		if _, err := svc.SetRole(context.Background(), admin, ann.UserID, RoleAdmin); err != nil {
			return false
		}
		p, err := resolver.Resolve(context.Background(), ann.UserID)
		return err == nil && p.Role == RoleAdmin
	}, 2*time.Second, 20*time.Millisecond)
}
