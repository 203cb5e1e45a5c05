// Package tasks holds background jobs processed by the worker
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/xiaozining525-dotcom/bk/internal/models"
)

// Task types and queues
const (
	TypeLockoutAlert = "security:lockout_alert"
	QueueAlerts      = "alerts"
)

// NewLockoutAlertTask builds the task carrying alert
func NewLockoutAlertTask(alert models.LockoutAlert) (*asynq.Task, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lockout alert: %w", err)
	}
	return asynq.NewTask(TypeLockoutAlert, payload), nil
}
