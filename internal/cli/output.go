package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
	"github.com/eshaffer321/audience-mix/internal/domain/validator"
)

// applyOutput is the JSON printed by the apply command
type applyOutput struct {
	Buckets      distribution.BucketSet `json:"buckets"`
	Changes      []distribution.Change  `json:"changes"`
	Sum          int                    `json:"sum"`
	Status       distribution.Status    `json:"status"`
	NoOp         bool                   `json:"no_op"`
	Seeded       bool                   `json:"seeded"`
	Renormalized bool                   `json:"renormalized"`
}

// PrintJSON writes v as indented JSON
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintApplyResult prints an allocator result as JSON
func PrintApplyResult(w io.Writer, res *distribution.Result) error {
	changes := res.Changes
	if changes == nil {
		changes = []distribution.Change{}
	}
	return PrintJSON(w, applyOutput{
		Buckets:      res.Set,
		Changes:      changes,
		Sum:          res.Set.Sum(),
		Status:       res.Set.Status(),
		NoOp:         res.NoOp,
		Seeded:       res.Seeded,
		Renormalized: res.Renormalized,
	})
}

// PrintBucketTable prints a set as an aligned table with a total line
func PrintBucketTable(w io.Writer, set distribution.BucketSet, labels map[string]string) {
	width := len("Bucket")
	for _, b := range set.Buckets {
		width = max(width, len(labelFor(b.Key, labels)))
	}

	fmt.Fprintf(w, "%-*s  %5s  %s\n", width, "Bucket", "Value", "Tier")
	fmt.Fprintln(w, strings.Repeat("-", width+19))
	for _, b := range set.Buckets {
		fmt.Fprintf(w, "%-*s  %4d%%  %s\n", width, labelFor(b.Key, labels), b.Value, distribution.TierOf(b.Value))
	}
	fmt.Fprintln(w, strings.Repeat("-", width+19))

	v := validator.ValidateDistribution(set)
	fmt.Fprintf(w, "%-*s  %4d%%", width, "Total", v.Sum)
	if !v.Valid {
		fmt.Fprintf(w, "  (%s)", v.Reason)
	}
	fmt.Fprintln(w)
}

func labelFor(key string, labels map[string]string) string {
	if label, ok := labels[key]; ok {
		return label
	}
	return key
}
