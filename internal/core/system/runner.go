package system

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Runner drives registered systems in phase order. Systems sharing a phase
// run in registration order. A panicking system is logged and the tick
// continues with the next one.
type Runner struct {
	systems []System
	log     *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log}
}

// Register inserts s after every system of the same or an earlier phase.
func (r *Runner) Register(s System) {
	i := sort.Search(len(r.systems), func(i int) bool {
		return r.systems[i].Phase() > s.Phase()
	})
	r.systems = append(r.systems, nil)
	copy(r.systems[i+1:], r.systems[i:])
	r.systems[i] = s
}

func (r *Runner) Tick(dt time.Duration) {
	for _, s := range r.systems {
		r.run(s, dt)
	}
}

func (r *Runner) run(s System, dt time.Duration) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("system panicked",
				zap.String("phase", s.Phase().String()),
				zap.String("system", fmt.Sprintf("%T", s)),
				zap.Any("panic", v))
		}
	}()
	s.Update(dt)
}

func (r *Runner) Len() int {
	return len(r.systems)
}
