package handlers

import (
	"time"

	"github.com/eshaffer321/audience-mix/internal/api/dto"
	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
	"github.com/eshaffer321/audience-mix/internal/domain/validator"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/storage"
)

// toSetState describes a set with its validation outcome.
func toSetState(set distribution.BucketSet) dto.SetState {
	return setStateWith(set, validator.ValidateDistribution(set))
}

// setStateWith describes a set using an already computed validation.
func setStateWith(set distribution.BucketSet, v *validator.DistributionValidation) dto.SetState {
	summary := make([]dto.BucketSummary, 0, set.Len())
	for _, b := range set.Buckets {
		summary = append(summary, dto.BucketSummary{
			Key:   b.Key,
			Value: b.Value,
			Tier:  distribution.TierOf(b.Value),
		})
	}

	return dto.SetState{
		Buckets: set,
		Summary: summary,
		Sum:     v.Sum,
		Status:  v.Status,
		Valid:   v.Valid,
		Reason:  v.Reason,
	}
}

// toDistributionResponse converts a stored distribution to an API response.
func toDistributionResponse(d *storage.Distribution) dto.DistributionResponse {
	return distributionResponseWith(d, validator.ValidateDistribution(d.Set))
}

func distributionResponseWith(d *storage.Distribution, v *validator.DistributionValidation) dto.DistributionResponse {
	return dto.DistributionResponse{
		ID:        d.ID,
		Name:      d.Name,
		Version:   d.Version,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
		SetState:  setStateWith(d.Set, v),
	}
}

// toChangeRecordResponse converts a history entry to an API response.
func toChangeRecordResponse(c storage.ChangeRecord) dto.ChangeRecordResponse {
	return dto.ChangeRecordResponse{
		ID:             c.ID,
		Version:        c.Version,
		Kind:           c.Kind,
		Key:            c.ChangedKey,
		RequestedValue: c.RequestedValue,
		AppliedValue:   c.AppliedValue,
		Before:         c.Before,
		After:          c.After,
		Renormalized:   c.Renormalized,
		CreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// changesOrEmpty keeps "changes" a JSON array even when nothing moved.
func changesOrEmpty(changes []distribution.Change) []distribution.Change {
	if changes == nil {
		return []distribution.Change{}
	}
	return changes
}
