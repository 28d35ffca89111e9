package sim

import (
	"math/rand"
	"time"

	"github.com/heliowatt/solarstream/pkg/store"
)

// SolarThreshold is the category boundary: a sample strictly above it is
// tagged Solar. It coincides with the mode range boundary by construction,
// which means a High-mode draw of exactly 50 is tagged Normal. The category
// is derived from the value, not from the mode that produced it, matching
// the metering contract.
const SolarThreshold = 50.0

// Generate draws one sample under the given mode.
// Low mode draws uniformly from [0,50), High mode from [50,100).
func Generate(mode Mode, rng *rand.Rand, now time.Time) store.Sample {
	value := rng.Float64() * 50
	if mode == ModeHigh {
		value += 50
	}
	// Two decimal places, like a metered reading.
	value = float64(int(value*100)) / 100

	category := store.CategoryNormal
	if value > SolarThreshold {
		category = store.CategorySolar
	}

	return store.Sample{
		Value:     value,
		Category:  category,
		Timestamp: now.UTC(),
	}
}
