package notification

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier отвечает за доставку уведомлений
type Notifier interface {
	SendNotification(ctx context.Context, notification Notification) error
}

type logNotifier struct {
	logger logrus.FieldLogger
}

func NewLogNotifier(logger logrus.FieldLogger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) SendNotification(_ context.Context, notification Notification) error {
	n.logger.WithFields(logrus.Fields{
		"kind":      notification.Kind,
		"task_id":   notification.TaskID,
		"actor_id":  notification.ActorID,
		"recipient": notification.RecipientID,
		"at":        notification.CreatedAt.Format(time.RFC3339),
	}).Info(notification.Message)
	return nil
}
