package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenBlacklistPrefix = "auth:token:blacklist:"
	loginAttemptsPrefix  = "auth:login:attempts:"
	sessionEventsChannel = "auth:session:events"

	maxLoginAttempts   = 5
	loginAttemptWindow = 10 * time.Minute
)

// SessionStore keeps revoked tokens, failed login counters and the
// session event channel in redis.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

func (s *SessionStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, tokenBlacklistPrefix+tokenID, "revoked", ttl).Err()
}

func (s *SessionStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	exists, err := s.rdb.Exists(ctx, tokenBlacklistPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (s *SessionStore) LoginBlocked(ctx context.Context, email string) (bool, error) {
	cnt, err := s.rdb.Get(ctx, loginAttemptsPrefix+email).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cnt >= maxLoginAttempts, nil
}

// RecordFailedLogin increments the counter; the window starts at the first failure.
func (s *SessionStore) RecordFailedLogin(ctx context.Context, email string) error {
	key := loginAttemptsPrefix + email
	val, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if val == 1 {
		return s.rdb.Expire(ctx, key, loginAttemptWindow).Err()
	}
	return nil
}

func (s *SessionStore) ResetLoginAttempts(ctx context.Context, email string) error {
	return s.rdb.Del(ctx, loginAttemptsPrefix+email).Err()
}

func (s *SessionStore) Publish(ctx context.Context, evt SessionEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, sessionEventsChannel, payload).Err()
}

// Subscribe returns once the subscription is confirmed by redis. The channel
// is closed when ctx is cancelled.
func (s *SessionStore) Subscribe(ctx context.Context) (<-chan SessionEvent, error) {
	sub := s.rdb.Subscribe(ctx, sessionEventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan SessionEvent)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
