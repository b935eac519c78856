package logger

import (
	"context"
	"log/slog"

	"github.com/dmoniz22/biomedical-rag/internal/middleware"
)

// ContextHandler decorates a slog.Handler so every record carries the
// request's correlation id when one is present on the context.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	return h.Handler.Handle(ctx, r)
}
