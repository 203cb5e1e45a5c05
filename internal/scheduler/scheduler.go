// Package scheduler keeps the rendered feed and sitemap warm
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// warmTimeout bounds a single refresh run
const warmTimeout = time.Minute

// DocumentWarmer renders and caches documents for a base URL
type DocumentWarmer interface {
	Warm(ctx context.Context, base string) error
}

// Scheduler periodically re-renders cached documents
type Scheduler struct {
	cron    *cron.Cron
	warmer  DocumentWarmer
	baseURL string
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// New creates a scheduler running on schedule.
// schedule accepts standard cron expressions and descriptors such as "@every 15m".
func New(schedule, baseURL string, warmer DocumentWarmer, logger *zap.Logger) (*Scheduler, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	s := &Scheduler{
		cron:    cron.New(),
		warmer:  warmer,
		baseURL: baseURL,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(schedule, s.refresh); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Start runs a refresh immediately and then on schedule
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started", zap.String("base_url", s.baseURL))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refresh()
	}()
	s.cron.Start()
}

// Stop stops the schedule and waits for a running refresh to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()

	start := time.Now()
	if err := s.warmer.Warm(ctx, s.baseURL); err != nil {
		s.logger.Error("Failed to refresh documents", zap.Error(err))
		return
	}
	s.logger.Debug("Documents refreshed", zap.Duration("duration", time.Since(start)))
}

// NextRun reports when the next refresh is due
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
