package handlers

import (
	"net/http"

	"github.com/eshaffer321/audience-mix/internal/api/dto"
	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
)

// PresetsHandler serves the built-in bucket layouts and the keys new
// distributions get by default.
type PresetsHandler struct {
	*Base
	defaultKeys []string
}

// NewPresetsHandler creates a new presets handler. defaultKeys is the layout
// reported by GET /api/presets/default.
func NewPresetsHandler(defaultKeys []string) *PresetsHandler {
	if len(defaultKeys) == 0 {
		defaultKeys = distribution.AgeBracketKeys()
	}
	return &PresetsHandler{
		Base:        NewBase(nil),
		defaultKeys: defaultKeys,
	}
}

// Age handles GET /api/presets/age.
func (h *PresetsHandler) Age(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, dto.PresetResponse{
		Name:     "age",
		Brackets: distribution.AgeBrackets,
		Buckets:  distribution.ZeroSet(distribution.AgeBracketKeys()...),
	})
}

// Default handles GET /api/presets/default.
func (h *PresetsHandler) Default(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, dto.PresetResponse{
		Name:     "default",
		Brackets: distribution.BracketsFor(h.defaultKeys),
		Buckets:  distribution.ZeroSet(h.defaultKeys...),
	})
}
