package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// Advance(n) always crosses (current+n)/period boundaries.
func TestCounterAdvanceMatchesFormula(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		period := rapid.Uint64Range(1, 1<<20).Draw(t, "period")
		c := NewCounter(period)

		var current uint64
		steps := rapid.IntRange(0, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			n := rapid.Uint64Range(0, 1<<20).Draw(t, "n")
			crossed := c.Advance(n)
			assert.Equal(t, (current+n)/period, crossed)
			current = (current + n) % period
			assert.Equal(t, current, c.Current())
			assert.Less(t, c.Current(), c.Period())
		}
	})
}

func TestWakingClockSignalsOnlyOnBoundaryCrossing(t *testing.T) {
	w := NewChanWaker()
	clock := NewWakingClock(10, w)

	clock.Advance(5)
	select {
	case <-w.C():
		t.Fatal("waker signalled before a boundary was crossed")
	default:
	}

	clock.Advance(5) // crosses the boundary at 10
	select {
	case <-w.C():
	default:
		t.Fatal("waker did not signal on boundary crossing")
	}
}

func TestNopWakerNeverPanics(t *testing.T) {
	clock := NewWakingClock(1, NopWaker{})
	clock.Advance(100)
}

func TestDriftTotalSamplesNeverNegative(t *testing.T) {
	d := Drift{Samples: 100}
	assert.Equal(t, 0, d.TotalSamples(10))

	d = Drift{Samples: -5}
	assert.Equal(t, 15, d.TotalSamples(10))
}
