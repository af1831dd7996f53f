package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: accept sessions, drain request queues
	PhasePreUpdate               // 1: rotate entropy for the next tick
	PhasePostUpdate              // 2: deliver committed events
	PhaseOutput                  // 3: flush session output
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre_update"
	case PhasePostUpdate:
		return "post_update"
	case PhaseOutput:
		return "output"
	default:
		return "unknown"
	}
}

// System is the interface every loop system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// PhaseObserver is told how long each phase with registered systems took.
type PhaseObserver interface {
	ObservePhase(phase string, d time.Duration)
}
