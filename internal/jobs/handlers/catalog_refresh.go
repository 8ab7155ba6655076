package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/himera-shop/internal/jobs"
)

// Refresher reloads a cached catalog.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type CatalogRefreshHandler struct {
	refresher Refresher
	log       *slog.Logger
}

func NewCatalogRefreshHandler(refresher Refresher, log *slog.Logger) *CatalogRefreshHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CatalogRefreshHandler{refresher: refresher, log: log}
}

func (h *CatalogRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.CatalogRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "catalog refresh: failed to decode payload", slog.String("task_type", t.Type()), slog.String("error", err.Error()))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	h.log.InfoContext(ctx, "refreshing catalog", slog.String("task_type", t.Type()), slog.String("reason", payload.Reason))

	if err := h.refresher.Refresh(ctx); err != nil {
		h.log.WarnContext(ctx, "catalog refresh failed", slog.String("error", err.Error()))
		return err
	}

	return nil
}
