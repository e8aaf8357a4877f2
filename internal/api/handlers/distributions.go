package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/audience-mix/internal/api/dto"
	"github.com/eshaffer321/audience-mix/internal/application/service"
	"github.com/eshaffer321/audience-mix/internal/domain/validator"
)

// DistributionsHandler handles saved distribution requests.
type DistributionsHandler struct {
	*Base
	svc *service.DistributionService
}

// NewDistributionsHandler creates a new distributions handler.
func NewDistributionsHandler(svc *service.DistributionService, logger *slog.Logger) *DistributionsHandler {
	return &DistributionsHandler{
		Base: NewBase(logger),
		svc:  svc,
	}
}

// Create handles POST /api/distributions.
func (h *DistributionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateDistributionRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	createReq := service.CreateRequest{
		Name: req.Name,
		Keys: req.Keys,
	}
	if req.Buckets != nil {
		if len(createReq.Keys) == 0 {
			createReq.Keys = req.Buckets.Keys()
		}
		createReq.Values = req.Buckets.Map()
	}

	d, err := h.svc.Create(r.Context(), createReq)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, toDistributionResponse(d))
}

// List handles GET /api/distributions.
func (h *DistributionsHandler) List(w http.ResponseWriter, r *http.Request) {
	params := dto.DefaultListParams()
	params.Limit = ParseIntParam(r, "limit", params.Limit)
	params.Offset = ParseIntParam(r, "offset", params.Offset)

	result, err := h.svc.List(r.Context(), params.Limit, params.Offset)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	response := dto.DistributionListResponse{
		Distributions: make([]dto.DistributionResponse, 0, len(result.Distributions)),
		TotalCount:    result.TotalCount,
		Limit:         result.Limit,
		Offset:        result.Offset,
	}
	for _, d := range result.Distributions {
		response.Distributions = append(response.Distributions, toDistributionResponse(d))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/distributions/{id}.
func (h *DistributionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toDistributionResponse(d))
}

// Delete handles DELETE /api/distributions/{id}.
func (h *DistributionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApplyChange handles POST /api/distributions/{id}/changes.
func (h *DistributionsHandler) ApplyChange(w http.ResponseWriter, r *http.Request) {
	var req dto.ApplyChangeRequest
	if !h.DecodeJSON(w, r, &req) {
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

	result, err := h.svc.ApplyChange(r.Context(), chi.URLParam(r, "id"), req.Key, *req.Value)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toApplyChangeResponse(result))
}

// History handles GET /api/distributions/{id}/changes.
func (h *DistributionsHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 100)

	changes, err := h.svc.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	response := dto.ChangeListResponse{
		Changes: make([]dto.ChangeRecordResponse, 0, len(changes)),
		Count:   len(changes),
	}
	for _, c := range changes {
		response.Changes = append(response.Changes, toChangeRecordResponse(c))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Reset handles POST /api/distributions/{id}/reset.
func (h *DistributionsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toApplyChangeResponse(result))
}

func toApplyChangeResponse(result *service.ApplyResult) dto.ApplyChangeResponse {
	v := result.Validation
	if v == nil {
		v = validator.ValidateDistribution(result.Distribution.Set)
	}
	return dto.ApplyChangeResponse{
		Distribution: distributionResponseWith(result.Distribution, v),
		Changes:      changesOrEmpty(result.Changes),
		NoOp:         result.NoOp,
		Seeded:       result.Seeded,
		Renormalized: result.Renormalized,
	}
}
