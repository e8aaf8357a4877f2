// Package validator checks distributions before they are saved or edited.
//
// A distribution is valid when every bucket holds an integer in [0,100],
// keys are unique and non-empty, and the buckets sum to exactly 100.
// Validation never fails hard: it reports what is wrong so callers can
// surface the reason to whoever supplied the data.
package validator

import (
	"fmt"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
)

const reasonNoAllocation = "no allocation yet"

// DistributionValidation contains the result of validating a distribution.
type DistributionValidation struct {
	// Valid is true if the distribution sums to 100 with every bucket in range
	Valid bool

	// Sum is the sum of all bucket values
	Sum int

	// Difference is Sum minus 100
	Difference int

	// Status is the pristine/partial/settled classification
	Status distribution.Status

	// Reason explains why validation failed (empty if valid)
	Reason string
}

// ValidateDistribution checks that set is a complete, well-formed distribution.
func ValidateDistribution(set distribution.BucketSet) *DistributionValidation {
	result := &DistributionValidation{
		Sum:        set.Sum(),
		Difference: set.Sum() - distribution.Total,
		Status:     set.Status(),
	}

	if set.Len() == 0 {
		result.Reason = "distribution has no buckets"
		return result
	}

	seen := make(map[string]bool, set.Len())
	for _, b := range set.Buckets {
		switch {
		case b.Key == "":
			result.Reason = "bucket with empty key"
			return result
		case seen[b.Key]:
			result.Reason = fmt.Sprintf("bucket %q appears more than once", b.Key)
			return result
		case b.Value < 0 || b.Value > distribution.Total:
			result.Reason = fmt.Sprintf("bucket %q is %d%%, must be between 0 and %d", b.Key, b.Value, distribution.Total)
			return result
		}
		seen[b.Key] = true
	}

	switch {
	case result.Status == distribution.StatusPristine:
		result.Reason = reasonNoAllocation
	case result.Difference < 0:
		result.Reason = fmt.Sprintf("buckets total %d%%, missing %d%%", result.Sum, -result.Difference)
	case result.Difference > 0:
		result.Reason = fmt.Sprintf("buckets total %d%%, exceeds %d%% by %d%%", result.Sum, distribution.Total, result.Difference)
	default:
		result.Valid = true
	}

	return result
}

// ValidateEditable reports whether set can be handed to the allocator:
// either settled, or pristine and waiting for its first edit.
func ValidateEditable(set distribution.BucketSet) *DistributionValidation {
	result := ValidateDistribution(set)
	if !result.Valid && result.Status == distribution.StatusPristine && result.Reason == reasonNoAllocation {
		result.Valid = true
		result.Reason = ""
	}
	return result
}
