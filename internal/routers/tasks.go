package routers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/Oniqq60/taskflow/internal/document"
	"github.com/Oniqq60/taskflow/internal/middleware"
	"github.com/Oniqq60/taskflow/internal/task"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// multipartOverhead covers boundaries and part headers around the file.
const multipartOverhead = 64 << 10

type TaskRoutes struct {
	responder
	service     task.TaskService
	actors      *actorResolver
	maxFileSize int64
}

func (r *TaskRoutes) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /profiles", r.handleRoster)
	mux.HandleFunc("POST /tasks", r.handleCreate)
	mux.HandleFunc("GET /tasks", r.handleList)
	mux.HandleFunc("GET /tasks/{id}", r.handleGet)
	mux.HandleFunc("PATCH /tasks/{id}/status", r.handleChangeStatus)
	mux.HandleFunc("POST /tasks/{id}/start", r.action(r.service.Start))
	mux.HandleFunc("POST /tasks/{id}/approve", r.action(r.service.Approve))
	mux.HandleFunc("POST /tasks/{id}/reject", r.action(r.service.Reject))
	mux.HandleFunc("POST /tasks/{id}/reopen", r.action(r.service.Reopen))
	mux.Handle("POST /tasks/{id}/artifact",
		middleware.RequestSizeLimit(r.maxFileSize+multipartOverhead)(http.HandlerFunc(r.handleUpload)))
	mux.HandleFunc("GET /tasks/{id}/artifact", r.handleDownload)
	mux.HandleFunc("GET /tasks/{id}/submissions", r.handleSubmissions)
}

// withTask resolves the actor and the {id} path value before calling fn.
func (r *TaskRoutes) withTask(fn func(http.ResponseWriter, *http.Request, uuid.UUID, auth.Profile)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		_, actor, err := r.actors.resolve(req)
		if err != nil {
			r.fail(w, req, err)
			return
		}
		id, err := uuid.Parse(req.PathValue("id"))
		if err != nil {
			r.writeError(w, http.StatusBadRequest, "validation", "invalid task id")
			return
		}
		fn(w, req, id, actor)
	}
}

func (r *TaskRoutes) action(op func(context.Context, uuid.UUID, auth.Profile) (task.Task, error)) http.HandlerFunc {
	return r.withTask(func(w http.ResponseWriter, req *http.Request, id uuid.UUID, actor auth.Profile) {
		t, err := op(req.Context(), id, actor)
		if err != nil {
			r.fail(w, req, err)
			return
		}
		r.writeJSON(w, http.StatusOK, newTaskResponse(t))
	})
}

func (r *TaskRoutes) handleCreate(w http.ResponseWriter, req *http.Request) {
	_, actor, err := r.actors.resolve(req)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	var payload createTaskRequest
	if err := decodeJSON(req, &payload); err != nil {
		r.fail(w, req, err)
		return
	}
	if err := validate.Struct(payload); err != nil {
		r.fail(w, req, err)
		return
	}

	t, err := r.service.CreateTask(req.Context(), payload.input(), actor)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	r.writeJSON(w, http.StatusCreated, newTaskResponse(t))
}

func (r *TaskRoutes) handleList(w http.ResponseWriter, req *http.Request) {
	_, actor, err := r.actors.resolve(req)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	q := req.URL.Query()
	view, err := task.ParseView(q.Get("view"))
	if err != nil {
		r.fail(w, req, err)
		return
	}
	opts := task.ListOptions{View: view}
	if raw := q.Get("status"); raw != "" {
		status, err := task.ParseStatus(raw)
		if err != nil {
			r.fail(w, req, err)
			return
		}
		opts.Status = &status
	}

	out := make([]taskResponse, 0)
	for t, err := range r.service.ListTasks(req.Context(), opts, actor) {
		if err != nil {
			r.fail(w, req, err)
			return
		}
		out = append(out, newTaskResponse(t))
	}
	r.writeJSON(w, http.StatusOK, out)
}

func (r *TaskRoutes) handleGet(w http.ResponseWriter, req *http.Request) {
	r.action(r.service.GetTask)(w, req)
}

func (r *TaskRoutes) handleChangeStatus(w http.ResponseWriter, req *http.Request) {
	r.withTask(func(w http.ResponseWriter, req *http.Request, id uuid.UUID, actor auth.Profile) {
		var payload changeStatusRequest
		if err := decodeJSON(req, &payload); err != nil {
			r.fail(w, req, err)
			return
		}
		if err := validate.Struct(payload); err != nil {
			r.fail(w, req, err)
			return
		}
		to, err := task.ParseStatus(payload.Status)
		if err != nil {
			r.fail(w, req, err)
			return
		}

		t, err := r.service.ChangeStatus(req.Context(), id, to, actor)
		if err != nil {
			r.fail(w, req, err)
			return
		}
		r.writeJSON(w, http.StatusOK, newTaskResponse(t))
	})(w, req)
}

func (r *TaskRoutes) handleUpload(w http.ResponseWriter, req *http.Request) {
	r.withTask(func(w http.ResponseWriter, req *http.Request, id uuid.UUID, actor auth.Profile) {
		if err := req.ParseMultipartForm(maxBodySize); err != nil {
			var maxErr *http.MaxBytesError
			if !errors.As(err, &maxErr) {
				err = fmt.Errorf("%w: malformed multipart body: %w", task.ErrValidation, err)
			}
			r.fail(w, req, err)
			return
		}
		defer req.MultipartForm.RemoveAll()

		files := req.MultipartForm.File["file"]
		if len(files) != 1 {
			r.writeError(w, http.StatusBadRequest, "validation", "exactly one file is required in field \"file\"")
			return
		}

		content, err := readPart(files[0], r.maxFileSize)
		if err != nil {
			r.fail(w, req, err)
			return
		}

		t, err := r.service.UploadArtifact(req.Context(), id, task.Artifact{
			FileName: files[0].Filename,
			Content:  content,
		}, actor)
		if err != nil {
			r.fail(w, req, err)
			return
		}
		r.writeJSON(w, http.StatusOK, newTaskResponse(t))
	})(w, req)
}

func readPart(fh *multipart.FileHeader, maxSize int64) ([]byte, error) {
	if maxSize > 0 && fh.Size > maxSize {
		return nil, fmt.Errorf("%w: %w", task.ErrValidation, document.ErrFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open upload: %w", task.ErrValidation, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (r *TaskRoutes) handleDownload(w http.ResponseWriter, req *http.Request) {
	r.withTask(func(w http.ResponseWriter, req *http.Request, id uuid.UUID, actor auth.Profile) {
		dl, err := r.service.DownloadArtifact(req.Context(), id, actor)
		if err != nil {
			r.fail(w, req, err)
			return
		}
		defer dl.Body.Close()

		h := w.Header()
		h.Set("Content-Type", dl.ContentType)
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", document.EscapeFilename(dl.FileName)))
		if dl.Size > 0 {
			h.Set("Content-Length", strconv.FormatInt(dl.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, dl.Body); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WithError(err).WithField("task_id", id).Warn("artifact download interrupted")
		}
	})(w, req)
}

func (r *TaskRoutes) handleSubmissions(w http.ResponseWriter, req *http.Request) {
	r.withTask(func(w http.ResponseWriter, req *http.Request, id uuid.UUID, actor auth.Profile) {
		history, err := r.service.Submissions(req.Context(), id, actor)
		if err != nil {
			r.fail(w, req, err)
			return
		}
		if history == nil {
			history = []document.Submission{}
		}
		r.writeJSON(w, http.StatusOK, history)
	})(w, req)
}

func (r *TaskRoutes) handleRoster(w http.ResponseWriter, req *http.Request) {
	_, actor, err := r.actors.resolve(req)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	roster, err := r.service.TeamRoster(req.Context(), actor)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	r.logger.WithFields(logrus.Fields{"actor_id": actor.UserID, "profiles": len(roster)}).Debug("roster listed")
	r.writeJSON(w, http.StatusOK, roster)
}
