package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmoniz22/biomedical-rag/internal/middleware"
	"github.com/dmoniz22/biomedical-rag/internal/retrieval"
)

type Handler struct {
	service *retrieval.Service
}

func NewHandler(s *retrieval.Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req retrieval.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(ctx, w, "INVALID_REQUEST", "query is required", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = retrieval.SearchNaturalLanguage
	}

	slog.InfoContext(ctx, "search request", "query", req.Query, "type", req.Type, "correlationId", correlationID)

	resp := h.service.Search(ctx, req)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
