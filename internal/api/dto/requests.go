package dto

import "github.com/eshaffer321/audience-mix/internal/domain/distribution"

// CreateDistributionRequest is the body of POST /api/distributions.
// Buckets gives keys and starting values in order; Keys alone creates an
// all-zero distribution. With neither, the server's default keys are used.
type CreateDistributionRequest struct {
	Name    string                  `json:"name"`
	Keys    []string                `json:"keys,omitempty"`
	Buckets *distribution.BucketSet `json:"buckets,omitempty"`
}

// ApplyChangeRequest is the body of POST /api/distributions/{id}/changes.
type ApplyChangeRequest struct {
	Key   string   `json:"key"`
	Value *float64 `json:"value"`
}

// AllocateRequest is the body of the stateless POST /api/allocate.
type AllocateRequest struct {
	Buckets distribution.BucketSet `json:"buckets"`
	Key     string                 `json:"key"`
	Value   *float64               `json:"value"`
}

// ListParams represents pagination query parameters.
type ListParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// DefaultListParams returns default values for list params.
func DefaultListParams() ListParams {
	return ListParams{
		Limit:  50,
		Offset: 0,
	}
}
