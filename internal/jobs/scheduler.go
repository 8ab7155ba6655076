package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	refreshSpec    string
	log            *slog.Logger
}

// NewScheduler creates a periodic task scheduler. refreshSpec is the cron
// expression for catalog refreshes; an empty spec disables them.
func NewScheduler(redisOpt asynq.RedisConnOpt, refreshSpec string, log *slog.Logger) Scheduler {
	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, nil),
		refreshSpec:    refreshSpec,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	if s.refreshSpec == "" {
		return nil
	}

	task, err := NewCatalogRefreshTask("schedule", 0)
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.refreshSpec, task); err != nil {
		return err
	}

	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: registered catalog refresh task", slog.String("spec", s.refreshSpec))
	}

	return nil
}

func (s *scheduler) Run() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: starting")
	}

	go func() {
		if err := s.asynqScheduler.Run(); err != nil && s.log != nil {
			s.log.ErrorContext(context.Background(), "scheduler: run failed", "error", err)
		}
	}()
}

func (s *scheduler) Shutdown() {
	if s.log != nil {
		s.log.InfoContext(context.Background(), "scheduler: shutting down")
	}

	s.asynqScheduler.Shutdown()
}
