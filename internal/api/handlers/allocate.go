package handlers

import (
	"log/slog"
	"net/http"

	"github.com/eshaffer321/audience-mix/internal/api/dto"
	"github.com/eshaffer321/audience-mix/internal/application/service"
)

// AllocateHandler runs the allocator on a caller-supplied set without saving it.
type AllocateHandler struct {
	*Base
	svc *service.DistributionService
}

// NewAllocateHandler creates a new allocate handler.
func NewAllocateHandler(svc *service.DistributionService, logger *slog.Logger) *AllocateHandler {
	return &AllocateHandler{
		Base: NewBase(logger),
		svc:  svc,
	}
}

// ServeHTTP handles POST /api/allocate.
func (h *AllocateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req dto.AllocateRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}
	if req.Buckets.Len() == 0 {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("buckets is required"))
		return
	}
	if req.Key == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("key is required"))
		return
	}
	if req.Value == nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("value is required"))
		return
	}

	result, err := h.svc.Allocate(req.Buckets, req.Key, *req.Value)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.AllocateResponse{
		SetState:     toSetState(result.Set),
		Changes:      changesOrEmpty(result.Changes),
		NoOp:         result.NoOp,
		Seeded:       result.Seeded,
		Renormalized: result.Renormalized,
	})
}
