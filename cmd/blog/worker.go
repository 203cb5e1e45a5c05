package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"github.com/xiaozining525-dotcom/bk/internal/config"
	"github.com/xiaozining525-dotcom/bk/internal/logger"
	"github.com/xiaozining525-dotcom/bk/internal/tasks"
	"go.uber.org/zap"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process background alert tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(config.LoadWorker)
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.Alerts.Email == "" {
			logger.Logger.Warn("ALERT_EMAIL is not set, lockout alerts will not be enqueued")
		}

		srv := asynq.NewServer(
			asynq.RedisClientOpt{
				Addr:     cfg.RedisAddr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
			asynq.Config{
				Concurrency: 2,
				Queues: map[string]int{
					tasks.QueueAlerts: 1,
				},
			},
		)

		mailer := tasks.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
		worker := tasks.NewWorker(mailer, cfg.Alerts.Email, cfg.Site.Title, logger.Logger)

		mux := asynq.NewServeMux()
		worker.Register(mux)

		logger.Logger.Info("worker starting", zap.String("queue", tasks.QueueAlerts))
		if err := srv.Start(mux); err != nil {
			return err
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Logger.Info("Shutting down worker...")
		srv.Shutdown()
		logger.Logger.Info("Worker exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
