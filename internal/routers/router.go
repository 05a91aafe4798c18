package routers

import (
	"errors"
	"net/http"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/Oniqq60/taskflow/internal/middleware"
	"github.com/Oniqq60/taskflow/internal/task"
	"github.com/sirupsen/logrus"
)

type Dependencies struct {
	Auth         auth.Service
	Profiles     ProfileResolver
	Tasks        task.TaskService
	Logger       logrus.FieldLogger
	Middleware   []func(http.Handler) http.Handler
	MaxFileSize  int64
	SecureCookie bool
}

type Router struct {
	mux     *http.ServeMux
	handler http.Handler
}

func New(deps Dependencies) (*Router, error) {
	if deps.Auth == nil || deps.Tasks == nil || deps.Profiles == nil {
		return nil, errors.New("auth, profiles and tasks services must be provided")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	rs := responder{logger: deps.Logger}
	actors := &actorResolver{sessions: deps.Auth, profiles: deps.Profiles}

	mux := http.NewServeMux()
	(&AuthRoutes{responder: rs, service: deps.Auth, actors: actors, secure: deps.SecureCookie}).RegisterHandlers(mux)
	(&TaskRoutes{responder: rs, service: deps.Tasks, actors: actors, maxFileSize: deps.MaxFileSize}).RegisterHandlers(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		rs.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return &Router{
		mux:     mux,
		handler: middleware.Chain(mux, deps.Middleware...),
	}, nil
}

func (r *Router) Handler() http.Handler {
	if r == nil {
		return nil
	}
	return r.handler
}
