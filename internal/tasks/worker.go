package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"github.com/hibiken/asynq"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// Mailer sends e-mail messages
type Mailer interface {
	// Send delivers an HTML message to a single recipient
	Send(to, subject, body string) error
}

// Worker handles background task processing
type Worker struct {
	mailer    Mailer
	recipient string
	siteTitle string
	logger    *zap.Logger
}

// NewWorker creates a new worker instance
func NewWorker(mailer Mailer, recipient, siteTitle string, logger *zap.Logger) *Worker {
	return &Worker{
		mailer:    mailer,
		recipient: recipient,
		siteTitle: siteTitle,
		logger:    logger,
	}
}

// Register binds the task handlers to mux
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeLockoutAlert, w.HandleLockoutAlert)
}

// HandleLockoutAlert e-mails the configured recipient about a locked out address
func (w *Worker) HandleLockoutAlert(ctx context.Context, t *asynq.Task) error {
	var alert models.LockoutAlert
	if err := json.Unmarshal(t.Payload(), &alert); err != nil {
		// Retrying a malformed payload cannot succeed
		return fmt.Errorf("failed to decode lockout alert: %v: %w", err, asynq.SkipRetry)
	}

	if w.recipient == "" {
		w.logger.Warn("lockout alert dropped, no recipient configured", zap.String("ip", alert.IP))
		return nil
	}

	subject := fmt.Sprintf("[%s] Login locked out for %s", w.siteTitle, alert.IP)
	if err := w.mailer.Send(w.recipient, subject, lockoutAlertBody(alert)); err != nil {
		return err
	}

	w.logger.Info("lockout alert sent", zap.String("ip", alert.IP), zap.String("username", alert.Username))
	return nil
}

func lockoutAlertBody(alert models.LockoutAlert) string {
	at := time.UnixMilli(alert.At).UTC().Format(time.RFC1123)
	return fmt.Sprintf(
		"<p>Address <b>%s</b> was locked out after %d failed login attempts.</p>"+
			"<p>Last attempted username: <b>%s</b><br>Time: %s</p>",
		html.EscapeString(alert.IP), alert.Attempts, html.EscapeString(alert.Username), at,
	)
}
