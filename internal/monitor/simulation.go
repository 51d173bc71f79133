package monitor

import (
	"math/rand/v2"
	"time"
)

// Simulation produces the next simulated heart rate from the current one.
type Simulation interface {
	Next(current int) int
}

// RandomWalk moves the rate by at most MaxStep per tick, bounded to [Floor, Ceiling].
type RandomWalk struct {
	Floor   int
	Ceiling int
	MaxStep int
	rnd     *rand.Rand
}

// NewRandomWalk creates a walk with the given bounds. A zero seed uses the clock.
func NewRandomWalk(floor, ceiling, maxStep int, seed uint64) *RandomWalk {
	if ceiling < floor {
		floor, ceiling = ceiling, floor
	}
	if maxStep < 1 {
		maxStep = 1
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandomWalk{
		Floor:   floor,
		Ceiling: ceiling,
		MaxStep: maxStep,
		rnd:     rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

func (w *RandomWalk) Next(current int) int {
	if current < w.Floor || current > w.Ceiling {
		return w.clamp(current)
	}
	delta := w.rnd.IntN(2*w.MaxStep+1) - w.MaxStep
	return w.clamp(current + delta)
}

func (w *RandomWalk) clamp(v int) int {
	return max(w.Floor, min(w.Ceiling, v))
}

// Replay cycles through a recorded rate stream.
type Replay struct {
	rates []int
	pos   int
}

// NewReplay creates a replay over rates. Non-positive entries are skipped.
func NewReplay(rates []int) *Replay {
	kept := make([]int, 0, len(rates))
	for _, r := range rates {
		if r > 0 {
			kept = append(kept, r)
		}
	}
	return &Replay{rates: kept}
}

func (r *Replay) Next(current int) int {
	if len(r.rates) == 0 {
		return current
	}
	v := r.rates[r.pos]
	r.pos = (r.pos + 1) % len(r.rates)
	return v
}
