package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmoniz22/biomedical-rag/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type submitRequest struct {
	Request
	JobName string `json:"job_name,omitempty"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(req.SubjectAreas) == 0 {
		h.writeError(ctx, w, "INVALID_REQUEST", "subject_areas is required", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "submitting bulk ingestion job", "source", req.Source, "correlationId", correlationID)

	jobID, err := h.service.Submit(ctx, req.Request, req.JobName)
	if err != nil {
		slog.ErrorContext(ctx, "failed to submit job", "error", err, "correlationId", correlationID)
		if errors.Is(err, ErrUnsupportedSource) {
			h.writeError(ctx, w, "UNSUPPORTED_SOURCE", err.Error(), http.StatusBadRequest)
			return
		}
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"job_id": jobID}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	job, err := h.service.Status(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get job status", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": job}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "paused", h.service.Pause)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resumed", h.service.Resume)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancelled", h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, verb string, op func(context.Context, string) error) {
	ctx := r.Context()
	id := r.PathValue("id")

	slog.InfoContext(ctx, "job transition requested", "id", id, "transition", verb)

	if err := op(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrNotPaused) {
			h.writeError(ctx, w, "INVALID_STATE", err.Error(), http.StatusConflict)
			return
		}
		slog.ErrorContext(ctx, "job transition failed", "id", id, "transition", verb, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": "job " + verb}); err != nil {
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
