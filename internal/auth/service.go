package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Service interface {
	Register(ctx context.Context, input RegisterInput) (Profile, error)
	Login(ctx context.Context, email, password string) (Token, Profile, error)
	CurrentSession(ctx context.Context, token string) (Session, error)
	SignOut(ctx context.Context, token string) error
	OnSessionChange(ctx context.Context, fn func(SessionEvent)) error
	SetRole(ctx context.Context, actor Profile, userID uuid.UUID, role Role) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type Options struct {
	Secret              []byte
	TokenTTL            time.Duration
	BootstrapAdminEmail string
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrNoSession          = errors.New("no active session")
	ErrForbidden          = errors.New("forbidden")
	// ErrSessionUnavailable: хранилище сессий недоступно, запрос можно повторить
	ErrSessionUnavailable = errors.New("session store unavailable")
)

type service struct {
	repo     ProfileRepository
	sessions *SessionStore
	opts     Options
	logger   logrus.FieldLogger
}

func NewService(repo ProfileRepository, sessions *SessionStore, opts Options, logger logrus.FieldLogger) Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	return &service{
		repo:     repo,
		sessions: sessions,
		opts:     opts,
		logger:   logger,
	}
}

func (s *service) Register(ctx context.Context, input RegisterInput) (Profile, error) {
	if err := ValidateEmail(input.Email); err != nil {
		return Profile{}, err
	}
	if err := ValidatePassword(input.Password); err != nil {
		return Profile{}, err
	}
	if err := ValidateName(input.Name); err != nil {
		return Profile{}, err
	}

	email := NormalizeEmail(input.Email)
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return Profile{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return Profile{}, err
	}

	hashed, err := HashPassword(input.Password)
	if err != nil {
		return Profile{}, err
	}

	role := RoleMember
	if s.opts.BootstrapAdminEmail != "" && email == s.opts.BootstrapAdminEmail {
		role = RoleAdmin
	}

	p := Profile{
		UserID:       uuid.New(),
		Email:        email,
		Name:         SanitizeString(input.Name),
		Role:         role,
		PasswordHash: hashed,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Profile{}, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": p.UserID, "role": p.Role}).Info("profile registered")
	return p, nil
}

func (s *service) Login(ctx context.Context, email, password string) (Token, Profile, error) {
	email = NormalizeEmail(email)
	if ValidateEmail(email) != nil || password == "" {
		return Token{}, Profile{}, ErrInvalidCredentials
	}

	blocked, err := s.sessions.LoginBlocked(ctx, email)
	if err != nil {
		// Если Redis недоступен, вход не блокируем
		s.logger.WithError(err).Warn("login throttle check failed")
	}
	if blocked {
		return Token{}, Profile{}, ErrTooManyAttempts
	}

	p, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return Token{}, Profile{}, err
	}
	if err != nil || CheckPassword(p.PasswordHash, password) != nil {
		if err := s.sessions.RecordFailedLogin(ctx, email); err != nil {
			s.logger.WithError(err).Warn("failed to record login attempt")
		}
		return Token{}, Profile{}, ErrInvalidCredentials
	}

	if err := s.sessions.ResetLoginAttempts(ctx, email); err != nil {
		s.logger.WithError(err).Warn("failed to reset login attempts")
	}

	claims := BuildJWTClaims(p, s.opts.TokenTTL)
	signed, err := SignToken(claims, s.opts.Secret)
	if err != nil {
		return Token{}, Profile{}, err
	}

	s.publish(ctx, EventSignedIn, p.UserID)
	return Token{AccessToken: signed, ExpiresAt: claims.ExpiresAt.Time}, p, nil
}

func (s *service) CurrentSession(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNoSession
	}
	claims, err := ParseToken(token, s.opts.Secret)
	if err != nil {
		return Session{}, ErrNoSession
	}

	revoked, err := s.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.WithError(err).Warn("token blacklist check failed")
		return Session{}, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	if revoked {
		return Session{}, ErrNoSession
	}

	return Session{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *service) SignOut(ctx context.Context, token string) error {
	session, err := s.CurrentSession(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, session.TokenID, time.Until(session.ExpiresAt)); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	s.publish(ctx, EventSignedOut, session.UserID)
	return nil
}

// OnSessionChange blocks, invoking fn for every session event until ctx is done.
func (s *service) OnSessionChange(ctx context.Context, fn func(SessionEvent)) error {
	events, err := s.sessions.Subscribe(ctx)
	if err != nil {
		return err
	}
	for evt := range events {
		fn(evt)
	}
	return nil
}

func (s *service) SetRole(ctx context.Context, actor Profile, userID uuid.UUID, role Role) (Profile, error) {
	if !actor.IsAdmin() {
		return Profile{}, ErrForbidden
	}
	if !role.Valid() {
		return Profile{}, ErrInvalidRole
	}
	p, err := s.repo.UpdateRole(ctx, userID, role)
	if err != nil {
		return Profile{}, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": userID, "role": role, "actor_id": actor.UserID}).Info("role changed")
	s.publish(ctx, EventProfileUpdated, userID)
	return p, nil
}

func (s *service) ListProfiles(ctx context.Context) ([]Profile, error) {
	return s.repo.List(ctx)
}

func (s *service) publish(ctx context.Context, typ SessionEventType, userID uuid.UUID) {
	evt := SessionEvent{Type: typ, UserID: userID, At: time.Now().UTC()}
	if err := s.sessions.Publish(ctx, evt); err != nil {
		s.logger.WithError(err).WithField("event", typ).Warn("failed to publish session event")
	}
}
