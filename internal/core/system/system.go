package system

import "time"

// Phase orders systems within one tick. Lower phases run first.
type Phase int

const (
	PhaseDispatch Phase = iota // deliver hooks queued during the previous tick
	PhaseUpdate                // embedder game logic
	PhasePersist               // batch saves
)

func (p Phase) String() string {
	switch p {
	case PhaseDispatch:
		return "dispatch"
	case PhaseUpdate:
		return "update"
	case PhasePersist:
		return "persist"
	}
	return "unknown"
}

// System is driven once per tick by a Runner.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
