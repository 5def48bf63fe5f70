package system

import (
	"time"

	"github.com/l1jgo/worldstore/internal/core/event"
	coresys "github.com/l1jgo/worldstore/internal/core/system"
)

// DispatchSystem delivers the events emitted during the previous tick.
// Runs first in every tick.
type DispatchSystem struct {
	bus *event.Bus
}

func NewDispatchSystem(bus *event.Bus) *DispatchSystem {
	return &DispatchSystem{bus: bus}
}

func (s *DispatchSystem) Phase() coresys.Phase { return coresys.PhaseDispatch }

func (s *DispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
