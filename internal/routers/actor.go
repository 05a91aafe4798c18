package routers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/google/uuid"
)

// ProfileResolver loads the profile of a signed-in user.
type ProfileResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (auth.Profile, error)
}

type actorResolver struct {
	sessions auth.Service
	profiles ProfileResolver
}

// resolve turns the request token into the acting profile. A token whose
// profile was deleted is treated as no session.
func (a *actorResolver) resolve(req *http.Request) (auth.Session, auth.Profile, error) {
	token, err := bearerToken(req)
	if err != nil {
		return auth.Session{}, auth.Profile{}, err
	}
	session, err := a.sessions.CurrentSession(req.Context(), token)
	if err != nil {
		return auth.Session{}, auth.Profile{}, err
	}
	profile, err := a.profiles.Resolve(req.Context(), session.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return auth.Session{}, auth.Profile{}, auth.ErrNoSession
		}
		return auth.Session{}, auth.Profile{}, err
	}
	return session, profile, nil
}
