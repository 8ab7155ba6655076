package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeCatalogRefresh = "catalog:refresh"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the default queue priority map for the worker.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

type CatalogRefreshPayload struct {
	Reason string `json:"reason"`
}

// NewCatalogRefreshTask builds a task that reloads the catalog cache. Only
// one refresh may be queued per uniqueness window.
func NewCatalogRefreshTask(reason string, unique time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(CatalogRefreshPayload{Reason: reason})
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{asynq.Queue(QueueLow), asynq.MaxRetry(3)}
	if unique > 0 {
		opts = append(opts, asynq.Unique(unique))
	}

	return asynq.NewTask(TaskTypeCatalogRefresh, payload, opts...), nil
}
