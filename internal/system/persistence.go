package system

import (
	"context"
	"time"

	coresys "github.com/l1jgo/worldstore/internal/core/system"
	"github.com/l1jgo/worldstore/internal/world"
	"go.uber.org/zap"
)

const batchSaveTimeout = 30 * time.Second

// Saver persists a batch of players atomically. *persist.CharacterRepo
// implements it.
type Saver interface {
	SaveMany(ctx context.Context, players []*world.Player, online bool) error
}

// Crediter moves pending shop orders onto a player.
type Crediter interface {
	Credit(ctx context.Context, p *world.Player) (int64, error)
}

// PersistenceSystem periodically saves every online player in one batch.
// Runs in the persist phase. The final offline save on shutdown belongs to
// session.Manager.LeaveAll.
type PersistenceSystem struct {
	players   *world.Registry
	saver     Saver
	orders    Crediter
	log       *zap.Logger
	tickCount int
	interval  int // auto-save every N ticks
}

// NewPersistenceSystem creates the autosave system. orders may be nil.
func NewPersistenceSystem(players *world.Registry, saver Saver, orders Crediter, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &PersistenceSystem{
		players:  players,
		saver:    saver,
		orders:   orders,
		log:      log,
		interval: intervalTicks,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0

	ctx, cancel := context.WithTimeout(context.Background(), batchSaveTimeout)
	defer cancel()
	s.creditOrders(ctx)
	if err := s.save(ctx); err != nil {
		s.log.Error("autosave failed", zap.Error(err))
	}
}

// creditOrders applies pending orders before the batch save so the new
// balance is persisted with it.
func (s *PersistenceSystem) creditOrders(ctx context.Context) {
	if s.orders == nil {
		return
	}
	for _, p := range s.players.All() {
		if _, err := s.orders.Credit(ctx, p); err != nil {
			s.log.Error("credit orders failed", zap.String("character", p.Name), zap.Error(err))
		}
	}
}

func (s *PersistenceSystem) save(ctx context.Context) error {
	players := s.players.All()
	if len(players) == 0 {
		return nil
	}
	start := time.Now()
	if err := s.saver.SaveMany(ctx, players, true); err != nil {
		return err
	}
	s.log.Info("players saved",
		zap.Int("count", len(players)),
		zap.Duration("took", time.Since(start)))
	return nil
}
