package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eshaffer321/audience-mix/internal/api/dto"
	"github.com/eshaffer321/audience-mix/internal/application/service"
	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/storage"
)

// maxBodyBytes caps request bodies; a distribution is a few hundred bytes.
const maxBodyBytes = 1 << 20

// Base provides shared functionality for all handlers.
type Base struct {
	logger *slog.Logger
}

// NewBase creates a new base handler with the given logger.
func NewBase(logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// DecodeJSON reads a JSON request body into v and returns false after writing
// an error response when it cannot. Malformed JSON is a 400; well-formed
// buckets that break a set rule (range, duplicates) are a 422.
func (b *Base) DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, distribution.ErrInvalidBucketSet) {
			b.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
			return false
		}
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// WriteServiceError maps service and domain errors to HTTP responses.
func (b *Base) WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("distribution"))
	case errors.Is(err, storage.ErrVersionConflict):
		b.WriteError(w, http.StatusConflict, dto.ConflictError("distribution was modified concurrently, retry"))
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, distribution.ErrInvalidKey),
		errors.Is(err, distribution.ErrPreconditionViolated),
		errors.Is(err, distribution.ErrInvalidBucketSet):
		b.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
	default:
		b.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
