package tasks

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// taskClient is the subset of *asynq.Client used to enqueue tasks
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// alertEnqueuer pushes lockout alerts to the alerts queue
type alertEnqueuer struct {
	client  taskClient
	enabled bool
	logger  *zap.Logger
}

// NewAlertEnqueuer creates a lockout alert enqueuer.
// When enabled is false alerts are only logged.
func NewAlertEnqueuer(client taskClient, enabled bool, logger *zap.Logger) *alertEnqueuer {
	return &alertEnqueuer{
		client:  client,
		enabled: enabled && client != nil,
		logger:  logger,
	}
}

// EnqueueLockoutAlert schedules a notification for alert
func (e *alertEnqueuer) EnqueueLockoutAlert(ctx context.Context, alert models.LockoutAlert) error {
	if !e.enabled {
		e.logger.Debug("lockout alerts disabled", zap.String("ip", alert.IP))
		return nil
	}

	task, err := NewLockoutAlertTask(alert)
	if err != nil {
		return err
	}

	info, err := e.client.EnqueueContext(ctx, task, asynq.Queue(QueueAlerts), asynq.MaxRetry(5))
	if err != nil {
		return err
	}

	e.logger.Info("lockout alert enqueued", zap.String("task_id", info.ID), zap.String("ip", alert.IP))
	return nil
}
