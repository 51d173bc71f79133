package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomWalkStaysInBounds(t *testing.T) {
	w := NewRandomWalk(50, 200, 3, 42)

	rate := 70
	for i := 0; i < 5000; i++ {
		next := w.Next(rate)
		assert.LessOrEqual(t, abs(next-rate), 3, "step MUST NOT exceed MaxStep")
		assert.GreaterOrEqual(t, next, 50)
		assert.LessOrEqual(t, next, 200)
		rate = next
	}
}

func TestRandomWalkClampsOutOfRange(t *testing.T) {
	w := NewRandomWalk(50, 200, 3, 7)

	assert.Equal(t, 50, w.Next(10))
	assert.Equal(t, 200, w.Next(250))
}

func TestRandomWalkNormalizesArguments(t *testing.T) {
	w := NewRandomWalk(180, 60, 0, 1)

	assert.Equal(t, 60, w.Floor)
	assert.Equal(t, 180, w.Ceiling)
	assert.Equal(t, 1, w.MaxStep)
}

func TestReplayCycles(t *testing.T) {
	r := NewReplay([]int{80, -1, 0, 90, 100})

	var got []int
	for i := 0; i < 7; i++ {
		got = append(got, r.Next(0))
	}

	assert.Equal(t, []int{80, 90, 100, 80, 90, 100, 80}, got)
}

func TestEmptyReplayHoldsRate(t *testing.T) {
	r := NewReplay(nil)

	assert.Equal(t, 72, r.Next(72))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
