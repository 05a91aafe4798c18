package routers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/Oniqq60/taskflow/internal/task"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const retryAfterSeconds = "5"

var statusByKind = map[string]int{
	"validation":         http.StatusBadRequest,
	"authorization":      http.StatusForbidden,
	"not_found":          http.StatusNotFound,
	"invalid_transition": http.StatusConflict,
	"conflict":           http.StatusConflict,
	"transient":          http.StatusServiceUnavailable,
}

// classify maps a service error to an HTTP status and the kind reported to clients.
func classify(err error) (int, string) {
	if kind := task.Kind(err); kind != "internal" {
		return statusByKind[kind], kind
	}

	var maxErr *http.MaxBytesError
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, errEmptyBody),
		errors.Is(err, errMalformedBody),
		errors.Is(err, errTrailingData),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrInvalidPassword),
		errors.Is(err, auth.ErrInvalidName),
		errors.Is(err, auth.ErrInvalidRole):
		return http.StatusBadRequest, "validation"
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "validation"
	case errors.Is(err, auth.ErrNoSession),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, errNoToken),
		errors.Is(err, errBadAuthHeader):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "authorization"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, "conflict"
	case errors.Is(err, auth.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, auth.ErrLookupTimeout),
		errors.Is(err, auth.ErrSessionUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "transient"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	message := err.Error()

	entry := rs.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		entry.Error("request failed")
		message = "internal error"
	case status == http.StatusServiceUnavailable:
		entry.Warn("dependency unavailable")
		w.Header().Set("Retry-After", retryAfterSeconds)
	default:
		entry.Debug("request rejected")
	}

	if verrs, ok := asValidationErrors(err); ok {
		message = describeValidation(verrs)
	}
	rs.writeError(w, status, kind, message)
}

func asValidationErrors(err error) (validator.ValidationErrors, bool) {
	var verrs validator.ValidationErrors
	ok := errors.As(err, &verrs)
	return verrs, ok
}
