package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick.
type Runner struct {
	systems []System
	sorted  bool
	obs     PhaseObserver
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Observe reports per-phase durations of every following tick to o.
func (r *Runner) Observe(o PhaseObserver) { r.obs = o }

// Tick runs every system once. Systems of one phase run in registration order.
func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	if r.obs == nil {
		for _, s := range r.systems {
			s.Update(dt)
		}
		return
	}

	for i := 0; i < len(r.systems); {
		phase := r.systems[i].Phase()
		start := time.Now()
		for ; i < len(r.systems) && r.systems[i].Phase() == phase; i++ {
			r.systems[i].Update(dt)
		}
		r.obs.ObservePhase(phase.String(), time.Since(start))
	}
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
