package distribution

// Bracket is a preset bucket key with its display label.
type Bracket struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// AgeBrackets is the audience age split used by campaign targeting.
var AgeBrackets = []Bracket{
	{Key: "18-24", Label: "18-24"},
	{Key: "25-34", Label: "25-34"},
	{Key: "35-44", Label: "35-44"},
	{Key: "45-54", Label: "45-54"},
	{Key: "55-64", Label: "55-64"},
	{Key: "65plus", Label: "65+"},
}

// AgeBracketKeys returns the keys of AgeBrackets in order.
func AgeBracketKeys() []string {
	keys := make([]string, len(AgeBrackets))
	for i, b := range AgeBrackets {
		keys[i] = b.Key
	}
	return keys
}

// BracketsFor labels keys, using the age label where a key is an age bracket
// and the key itself otherwise.
func BracketsFor(keys []string) []Bracket {
	labels := make(map[string]string, len(AgeBrackets))
	for _, b := range AgeBrackets {
		labels[b.Key] = b.Label
	}

	brackets := make([]Bracket, len(keys))
	for i, key := range keys {
		label, ok := labels[key]
		if !ok {
			label = key
		}
		brackets[i] = Bracket{Key: key, Label: label}
	}
	return brackets
}

// Tier buckets a single percentage for summary displays.
type Tier string

const (
	// TierZero marks an empty bucket.
	TierZero Tier = "zero"
	// TierLow marks a bucket holding 1 to 10 percent.
	TierLow Tier = "low"
	// TierHigh marks a bucket holding more than 10 percent.
	TierHigh Tier = "high"
)

// TierOf classifies a bucket value: above 10 is high, anything above zero is low.
func TierOf(value int) Tier {
	switch {
	case value > 10:
		return TierHigh
	case value > 0:
		return TierLow
	default:
		return TierZero
	}
}
