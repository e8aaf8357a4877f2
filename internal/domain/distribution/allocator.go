package distribution

import (
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sort"
)

// Rounding selects how exact shares are turned back into integers.
type Rounding string

const (
	// RoundLargestRemainder floors every share and hands the leftover units
	// to the largest fractional parts. Ties go to the changed bucket, then to
	// the smallest key.
	RoundLargestRemainder Rounding = "largest_remainder"

	// RoundNearest rounds every share half-up and pushes the whole rounding
	// difference onto the changed bucket, falling back to the largest bucket
	// when the changed one would leave [0,100].
	RoundNearest Rounding = "nearest"
)

// ParseRounding maps a config string to a Rounding. Empty means the default.
func ParseRounding(s string) (Rounding, error) {
	switch Rounding(s) {
	case "", RoundLargestRemainder:
		return RoundLargestRemainder, nil
	case RoundNearest:
		return RoundNearest, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
}

// noOpThreshold filters drag noise: smaller requested moves are ignored.
var noOpThreshold = big.NewRat(1, 100)

// Change records one bucket whose value moved.
type Change struct {
	Key  string `json:"key"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// Result is the outcome of a single ApplyChange call.
type Result struct {
	// Set is the complete new state.
	Set BucketSet
	// Changes lists only the buckets that differ from the input, in bucket order.
	Changes []Change
	// NoOp is true when the request was below the change threshold.
	NoOp bool
	// Seeded is true when the input was pristine and only the changed bucket was set.
	Seeded bool
	// Renormalized is true when a partial input was scaled to 100 before the change.
	Renormalized bool
}

// Config controls allocator behavior.
type Config struct {
	Rounding Rounding
	// Strict rejects partial inputs instead of renormalizing them. A set left
	// by a seed edit (one non-zero bucket) is still accepted and scaled to 100.
	Strict bool
}

// Allocator applies single-bucket edits to a distribution. It keeps no
// state between calls; callers serialize edits to the same set.
type Allocator struct {
	rounding Rounding
	strict   bool
	logger   *slog.Logger
}

// NewAllocator creates an allocator. A nil logger discards output.
func NewAllocator(cfg Config, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rounding := cfg.Rounding
	if rounding == "" {
		rounding = RoundLargestRemainder
	}
	return &Allocator{
		rounding: rounding,
		strict:   cfg.Strict,
		logger:   logger,
	}
}

var defaultAllocator = NewAllocator(Config{}, nil)

// ApplyChange sets changedKey to requested using the default allocator.
func ApplyChange(current BucketSet, changedKey string, requested float64) (*Result, error) {
	return defaultAllocator.ApplyChange(current, changedKey, requested)
}

// Rounding returns the configured rounding mode.
func (a *Allocator) Rounding() Rounding {
	return a.rounding
}

// Strict reports whether partial inputs are rejected.
func (a *Allocator) Strict() bool {
	return a.strict
}

// ApplyChange sets changedKey to requested (clamped to [0,100]) and
// redistributes the inverse delta across the other buckets in proportion to
// their current values. The input is never modified; on error no result is
// returned.
func (a *Allocator) ApplyChange(current BucketSet, changedKey string, requested float64) (*Result, error) {
	idx := current.index(changedKey)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, changedKey)
	}
	if err := current.check(); err != nil {
		return nil, err
	}

	status := current.Status()
	if status == StatusPartial && a.strict && !current.seeded() {
		return nil, fmt.Errorf("%w: sum is %d, want %d", ErrPreconditionViolated, current.Sum(), Total)
	}

	target, ok := clampRequested(requested)
	if !ok {
		return noOpResult(current), nil
	}
	old := ratInt(current.Buckets[idx].Value)
	if new(big.Rat).Abs(new(big.Rat).Sub(target, old)).Cmp(noOpThreshold) < 0 {
		return noOpResult(current), nil
	}

	if status == StatusPristine {
		return seed(current, idx, target), nil
	}

	base := current
	renormalized := false
	if status == StatusPartial {
		base = renormalize(current)
		renormalized = true
		a.logger.Debug("renormalized partial distribution",
			"sum", current.Sum(),
			"key", changedKey,
		)
	}

	exact := redistribute(base, idx, target)

	var values []int
	var err error
	switch a.rounding {
	case RoundNearest:
		values, err = a.roundNearest(exact, base.Keys(), idx)
	default:
		values, err = a.roundLargestRemainder(exact, base.Keys(), idx)
	}
	if err != nil {
		return nil, err
	}

	next := withValues(base, values)
	return &Result{
		Set:          next,
		Changes:      diffSets(current, next),
		Renormalized: renormalized,
	}, nil
}

// clampRequested converts requested to an exact value in [0,100].
// NaN has no meaningful clamp and reports false.
func clampRequested(requested float64) (*big.Rat, bool) {
	switch {
	case math.IsNaN(requested):
		return nil, false
	case requested <= 0:
		return new(big.Rat), true
	case requested >= Total:
		return ratInt(Total), true
	default:
		return new(big.Rat).SetFloat64(requested), true
	}
}

func noOpResult(current BucketSet) *Result {
	return &Result{Set: current.Clone(), NoOp: true}
}

// seed handles the first edit on an all-zero set: there is no mass to take
// from, so only the changed bucket moves.
func seed(current BucketSet, idx int, target *big.Rat) *Result {
	next := current.Clone()
	next.Buckets[idx].Value = roundHalfUp(target)
	return &Result{
		Set:     next,
		Changes: diffSets(current, next),
		Seeded:  true,
	}
}

// renormalize scales a partial set so it sums to exactly 100.
func renormalize(current BucketSet) BucketSet {
	sum := ratInt(current.Sum())
	exact := make([]*big.Rat, current.Len())
	for i, b := range current.Buckets {
		v := new(big.Rat).Mul(ratInt(b.Value), ratInt(Total))
		exact[i] = v.Quo(v, sum)
	}
	return withValues(current, largestRemainder(exact, current.Keys(), -1))
}

// redistribute computes the exact post-change share of every bucket.
func redistribute(base BucketSet, idx int, target *big.Rat) []*big.Rat {
	n := base.Len()
	old := ratInt(base.Buckets[idx].Value)
	sumOthers := ratInt(base.Sum() - base.Buckets[idx].Value)

	// A lone bucket has nowhere to send or take mass from.
	if n == 1 {
		target = old
	}

	delta := new(big.Rat).Sub(target, old)
	if delta.Cmp(sumOthers) > 0 {
		target = new(big.Rat).Add(old, sumOthers)
		delta = new(big.Rat).Set(sumOthers)
	}

	exact := make([]*big.Rat, n)
	for i, b := range base.Buckets {
		exact[i] = ratInt(b.Value)
	}
	exact[idx] = target

	switch delta.Sign() {
	case 1:
		// sumOthers >= delta > 0 here
		for i, b := range base.Buckets {
			if i == idx || b.Value == 0 {
				continue
			}
			share := new(big.Rat).Mul(delta, ratInt(b.Value))
			share.Quo(share, sumOthers)
			exact[i] = new(big.Rat).Sub(exact[i], share)
		}
	case -1:
		add := new(big.Rat).Neg(delta)
		if sumOthers.Sign() > 0 {
			for i, b := range base.Buckets {
				if i == idx {
					continue
				}
				share := new(big.Rat).Mul(add, ratInt(b.Value))
				share.Quo(share, sumOthers)
				exact[i] = new(big.Rat).Add(exact[i], share)
			}
		} else {
			each := new(big.Rat).Quo(add, ratInt(n-1))
			for i := range base.Buckets {
				if i != idx {
					exact[i] = new(big.Rat).Add(exact[i], each)
				}
			}
		}
	}

	return exact
}

func (a *Allocator) roundLargestRemainder(exact []*big.Rat, keys []string, changed int) ([]int, error) {
	values := largestRemainder(exact, keys, changed)
	if err := a.verify(values, keys); err != nil {
		return nil, err
	}
	return values, nil
}

// largestRemainder floors every value and distributes the missing units by
// descending fractional part. prefer wins ties; -1 disables the preference.
func largestRemainder(exact []*big.Rat, keys []string, prefer int) []int {
	n := len(exact)
	values := make([]int, n)
	fracs := make([]*big.Rat, n)
	sum := 0
	for i, v := range exact {
		values[i] = floorRat(v)
		fracs[i] = new(big.Rat).Sub(v, ratInt(values[i]))
		sum += values[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		i, j := order[x], order[y]
		if c := fracs[i].Cmp(fracs[j]); c != 0 {
			return c > 0
		}
		if i == prefer || j == prefer {
			return i == prefer
		}
		return keys[i] < keys[j]
	})

	for left := Total - sum; left > 0 && len(order) > 0; left-- {
		i := order[0]
		order = order[1:]
		if fracs[i].Sign() == 0 {
			break
		}
		values[i]++
	}
	return values
}

func (a *Allocator) roundNearest(exact []*big.Rat, keys []string, changed int) ([]int, error) {
	values := make([]int, len(exact))
	sum := 0
	for i, v := range exact {
		values[i] = roundHalfUp(v)
		sum += values[i]
	}

	if diff := Total - sum; diff != 0 {
		if adjusted := values[changed] + diff; adjusted >= 0 && adjusted <= Total {
			values[changed] = adjusted
		} else {
			largest := 0
			for i := range values {
				if values[i] > values[largest] || (values[i] == values[largest] && keys[i] < keys[largest]) {
					largest = i
				}
			}
			adjusted := clampInt(values[largest]+diff, 0, Total)
			diff -= adjusted - values[largest]
			values[largest] = adjusted
			spread(values, keys, diff)
		}
	}

	if err := a.verify(values, keys); err != nil {
		return nil, err
	}
	return values, nil
}

// spread moves diff one unit at a time across buckets, largest first,
// skipping buckets that would leave [0,100].
func spread(values []int, keys []string, diff int) {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		i, j := order[x], order[y]
		if values[i] != values[j] {
			return values[i] > values[j]
		}
		return keys[i] < keys[j]
	})

	for diff != 0 {
		moved := false
		for _, i := range order {
			if diff == 0 {
				break
			}
			step := 1
			if diff < 0 {
				step = -1
			}
			if v := values[i] + step; v >= 0 && v <= Total {
				values[i] = v
				diff -= step
				moved = true
			}
		}
		if !moved {
			return
		}
	}
}

func (a *Allocator) verify(values []int, keys []string) error {
	sum := 0
	for _, v := range values {
		sum += v
	}
	if sum == Total {
		return nil
	}

	snapshot := make(map[string]int, len(values))
	for i, v := range values {
		snapshot[keys[i]] = v
	}
	a.logger.Error("distribution sum correction failed",
		"sum", sum,
		"values", snapshot,
		"rounding", string(a.rounding),
	)
	return fmt.Errorf("%w: rounded sum is %d", ErrInvariantViolated, sum)
}

func withValues(base BucketSet, values []int) BucketSet {
	next := base.Clone()
	for i := range next.Buckets {
		next.Buckets[i].Value = values[i]
	}
	return next
}

func diffSets(before, after BucketSet) []Change {
	var changes []Change
	for i, b := range after.Buckets {
		if from := before.Buckets[i].Value; from != b.Value {
			changes = append(changes, Change{Key: b.Key, From: from, To: b.Value})
		}
	}
	return changes
}

func ratInt(v int) *big.Rat {
	return new(big.Rat).SetInt64(int64(v))
}

// floorRat returns floor(v). Values here are never negative, but Euclidean
// division floors for negative numerators too.
func floorRat(v *big.Rat) int {
	return int(new(big.Int).Div(v.Num(), v.Denom()).Int64())
}

func roundHalfUp(v *big.Rat) int {
	return floorRat(new(big.Rat).Add(v, big.NewRat(1, 2)))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
