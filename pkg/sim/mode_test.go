package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestOscillatorStartsLow(t *testing.T) {
	o := NewOscillator(zaptest.NewLogger(t), time.Second)
	assert.Equal(t, ModeLow, o.Current())
}

func TestOscillatorParity(t *testing.T) {
	// Sampling the state after n period boundaries yields the opposite state
	// for odd n and the same state for even n.
	o := NewOscillator(zaptest.NewLogger(t), time.Second)

	for n := 1; n <= 8; n++ {
		o.Toggle()
		if n%2 == 1 {
			assert.Equal(t, ModeHigh, o.Current(), "after %d toggles", n)
		} else {
			assert.Equal(t, ModeLow, o.Current(), "after %d toggles", n)
		}
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "low", ModeLow.String())
	assert.Equal(t, "high", ModeHigh.String())
}
