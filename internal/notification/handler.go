package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Oniqq60/taskflow/internal/auth"
	"github.com/Oniqq60/taskflow/internal/task"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyActorID = errors.New("actor id is required")
	ErrEmptyTaskID  = errors.New("task id is required")
)

type EventHandler interface {
	HandleEvent(ctx context.Context, event task.TaskEvent) error
}

// ProfileLister is satisfied by auth.Resolver.
type ProfileLister interface {
	List(ctx context.Context) ([]auth.Profile, error)
}

type eventHandler struct {
	notifier Notifier
	profiles ProfileLister
	logger   logrus.FieldLogger
}

func NewEventHandler(notifier Notifier, profiles ProfileLister, logger logrus.FieldLogger) EventHandler {
	return &eventHandler{
		notifier: notifier,
		profiles: profiles,
		logger:   logger,
	}
}

func (h *eventHandler) HandleEvent(ctx context.Context, event task.TaskEvent) error {
	if strings.TrimSpace(event.TaskID) == "" {
		return ErrEmptyTaskID
	}
	if strings.TrimSpace(event.ActorID) == "" {
		return ErrEmptyActorID
	}

	kind, aud := route(event)
	if aud == audienceNone {
		return nil
	}

	recipients, err := h.recipients(ctx, event, aud)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		h.logger.WithFields(logrus.Fields{"task_id": event.TaskID, "kind": kind}).Info("no recipients, skip notification")
		return nil
	}

	var errs []error
	for _, recipient := range recipients {
		n := Notification{
			Kind:        kind,
			TaskID:      event.TaskID,
			ActorID:     event.ActorID,
			RecipientID: recipient,
			Message:     message(kind, event),
			CreatedAt:   time.Now().UTC(),
		}
		if err := h.notifier.SendNotification(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("send notification to %s: %w", recipient, err))
		}
	}
	return errors.Join(errs...)
}

// recipients never includes the actor of the event.
func (h *eventHandler) recipients(ctx context.Context, event task.TaskEvent, aud audience) ([]string, error) {
	var ids []string
	switch aud {
	case audienceAssignees:
		ids = event.Assignees
	case audienceAdmins:
		profiles, err := h.profiles.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			if p.IsAdmin() {
				ids = append(ids, p.UserID.String())
			}
		}
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && id != event.ActorID {
			out = append(out, id)
		}
	}
	return out, nil
}
