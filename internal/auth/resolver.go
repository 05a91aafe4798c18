package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	profileCachePrefix = "auth:profile:"
	profileCacheTTL    = time.Hour
)

var ErrLookupTimeout = errors.New("profile lookup timed out")

// Resolver maps a user id to its profile. Lookups are bounded by a timeout
// and cached in redis when a client is configured.
type Resolver struct {
	repo    ProfileRepository
	rdb     *redis.Client
	timeout time.Duration
	logger  logrus.FieldLogger
}

func NewResolver(repo ProfileRepository, rdb *redis.Client, timeout time.Duration, logger logrus.FieldLogger) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{repo: repo, rdb: rdb, timeout: timeout, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (Profile, error) {
	if p, ok := r.cached(ctx, userID); ok {
		return p, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	p, err := r.repo.GetByID(lookupCtx, userID)
	if err != nil {
		if errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
			return Profile{}, fmt.Errorf("%w: %w", ErrLookupTimeout, context.DeadlineExceeded)
		}
		return Profile{}, err
	}

	r.store(ctx, p)
	return p, nil
}

func (r *Resolver) List(ctx context.Context) ([]Profile, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	profiles, err := r.repo.List(lookupCtx)
	if err != nil && errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", ErrLookupTimeout, context.DeadlineExceeded)
	}
	return profiles, err
}

func (r *Resolver) Evict(ctx context.Context, userID uuid.UUID) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, profileCachePrefix+userID.String()).Err()
}

// Watch evicts cached profiles on profile_updated events until ctx is done.
func (r *Resolver) Watch(ctx context.Context, svc Service) error {
	return svc.OnSessionChange(ctx, func(evt SessionEvent) {
		if evt.Type != EventProfileUpdated {
			return
		}
		if err := r.Evict(ctx, evt.UserID); err != nil {
			r.logger.WithError(err).WithField("user_id", evt.UserID).Warn("failed to evict cached profile")
		}
	})
}

func (r *Resolver) cached(ctx context.Context, userID uuid.UUID) (Profile, bool) {
	if r.rdb == nil {
		return Profile{}, false
	}
	raw, err := r.rdb.Get(ctx, profileCachePrefix+userID.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WithError(err).Debug("profile cache read failed")
		}
		return Profile{}, false
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, false
	}
	return p, true
}

func (r *Resolver) store(ctx context.Context, p Profile) {
	if r.rdb == nil {
		return
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, profileCachePrefix+p.UserID.String(), payload, profileCacheTTL).Err(); err != nil {
		r.logger.WithError(err).Debug("profile cache write failed")
	}
}
