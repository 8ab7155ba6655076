package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Manager enqueues background tasks.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type asynqManager struct {
	client *asynq.Client
	log    *slog.Logger
}

func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}
	return &asynqManager{client: asynq.NewClient(redisOpt), log: log}
}

func (m *asynqManager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, err
	}
	m.log.DebugContext(ctx, "task enqueued",
		slog.String("type", info.Type),
		slog.String("id", info.ID),
		slog.String("queue", info.Queue),
	)
	return info, nil
}

func (m *asynqManager) Close() error {
	return m.client.Close()
}

// EnqueueCatalogRefresh queues a catalog refresh unless one is already
// pending. A duplicate is not an error.
func EnqueueCatalogRefresh(ctx context.Context, m Manager, reason string) error {
	task, err := NewCatalogRefreshTask(reason, time.Minute)
	if err != nil {
		return err
	}

	_, err = m.Enqueue(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
