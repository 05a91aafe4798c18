package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrAuthorization     = errors.New("not authorized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("task was modified concurrently")
	ErrTransient         = errors.New("temporarily unavailable")
	ErrNotFound          = errors.New("not found")
)

var taxonomy = []struct {
	err  error
	kind string
}{
	{ErrValidation, "validation"},
	{ErrAuthorization, "authorization"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrConflict, "conflict"},
	{ErrTransient, "transient"},
	{ErrNotFound, "not_found"},
}

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Kind returns the short machine-readable name of err's category.
func Kind(err error) string {
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.kind
		}
	}
	return "internal"
}

func newError(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func classified(err error) bool {
	return Kind(err) != "internal"
}

// classifyStoreError maps gorm/pgx failures onto the error taxonomy.
func classifyStoreError(err error, op string) error {
	if err == nil || classified(err) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(ErrNotFound, "%s", op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"), strings.HasPrefix(pgErr.Code, "22"):
			// integrity or data exception: the input does not fit the schema
			return fmt.Errorf("%w: %s: %s", ErrValidation, op, pgErr.Message)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}
