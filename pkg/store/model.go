package store

import "time"

// Category classifies a rate sample by its value.
type Category string

const (
	CategorySolar  Category = "Solar"
	CategoryNormal Category = "Normal"
)

// Sample is one synthetic rate measurement. Samples are immutable once
// created; an account's sample sequence is append-only.
type Sample struct {
	Value     float64   `json:"value"`
	Category  Category  `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// SolarTotal recomputes an account's savings from its full sample history.
// This full rescan, not incremental patching, is the correctness anchor for
// the cached total: the cache must always equal SolarTotal(history).
func SolarTotal(samples []Sample) float64 {
	var total float64
	for _, s := range samples {
		if s.Category == CategorySolar {
			total += s.Value
		}
	}
	return total
}

// Account is an authenticated principal owning a sample history and its
// derived savings total. TotalSavings is a cache of the sum of Solar-tagged
// sample values; the stored history is authoritative.
type Account struct {
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	TotalSavings float64   `json:"totalSavings"`
	Samples      []Sample  `json:"rates,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
