package routers

import (
	"net/http"
	"time"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/google/uuid"
)

type AuthRoutes struct {
	responder
	service auth.Service
	actors  *actorResolver
	secure  bool
}

func (r *AuthRoutes) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", r.handleRegister)
	mux.HandleFunc("POST /auth/login", r.handleLogin)
	mux.HandleFunc("DELETE /auth/logout", r.handleLogout)
	mux.HandleFunc("GET /auth/session", r.handleSession)
	mux.HandleFunc("PATCH /profiles/{id}/role", r.handleSetRole)
}

func (r *AuthRoutes) handleRegister(w http.ResponseWriter, req *http.Request) {
	var payload registerRequest
	if err := decodeJSON(req, &payload); err != nil {
		r.fail(w, req, err)
		return
	}
	if err := validate.Struct(payload); err != nil {
		r.fail(w, req, err)
		return
	}

	profile, err := r.service.Register(req.Context(), auth.RegisterInput{
		Email:    payload.Email,
		Password: payload.Password,
		Name:     payload.Name,
	})
	if err != nil {
		r.fail(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusCreated, profile)
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	Profile     auth.Profile `json:"profile"`
}

func (r *AuthRoutes) handleLogin(w http.ResponseWriter, req *http.Request) {
	var payload loginRequest
	if err := decodeJSON(req, &payload); err != nil {
		r.fail(w, req, err)
		return
	}
	if err := validate.Struct(payload); err != nil {
		r.fail(w, req, err)
		return
	}

	token, profile, err := r.service.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token.AccessToken,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	})
	r.writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt,
		Profile:     profile,
	})
}

func (r *AuthRoutes) handleLogout(w http.ResponseWriter, req *http.Request) {
	token, err := bearerToken(req)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	if err := r.service.SignOut(req.Context(), token); err != nil {
		r.fail(w, req, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	Session auth.Session `json:"session"`
	Profile auth.Profile `json:"profile"`
}

func (r *AuthRoutes) handleSession(w http.ResponseWriter, req *http.Request) {
	session, profile, err := r.actors.resolve(req)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusOK, sessionResponse{Session: session, Profile: profile})
}

func (r *AuthRoutes) handleSetRole(w http.ResponseWriter, req *http.Request) {
	_, actor, err := r.actors.resolve(req)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	userID, err := uuid.Parse(req.PathValue("id"))
	if err != nil {
		r.writeError(w, http.StatusBadRequest, "validation", "invalid profile id")
		return
	}

	var payload setRoleRequest
	if err := decodeJSON(req, &payload); err != nil {
		r.fail(w, req, err)
		return
	}
	if err := validate.Struct(payload); err != nil {
		r.fail(w, req, err)
		return
	}

	profile, err := r.service.SetRole(req.Context(), actor, userID, auth.Role(payload.Role))
	if err != nil {
		r.fail(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusOK, profile)
}
