package persist

import (
	"regexp"
	"testing"

	"github.com/l1jgo/worldstore/internal/data"
	"github.com/l1jgo/worldstore/internal/world"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	potion = &data.ItemTemplate{Name: "Potion", MaxStack: 10}
	sword  = &data.ItemTemplate{Name: "Sword", MaxStack: 1, MaxDurability: 50, EquipCategory: "weapon", BonusHealth: 10}
	robe   = &data.ItemTemplate{Name: "Robe", MaxStack: 1, MaxDurability: 20, EquipCategory: "armor", BonusMana: 15}

	fireball = &data.SkillTemplate{Name: "Fireball", MaxLevel: 5, CastTime: 1.5, Cooldown: 4}
	shield   = &data.SkillTemplate{Name: "Shield", MaxLevel: 3, IsBuff: true, BuffDuration: 60, BuffHealth: 5}

	rats = &data.QuestTemplate{Name: "Rats", Required: 10}

	mage = &data.ClassTemplate{
		Name:           "Mage",
		MaxLevel:       50,
		BaseHealth:     100,
		HealthPerLevel: 10,
		BaseMana:       50,
		ManaPerLevel:   5,
		InventorySize:  4,
		EquipmentSlots: []string{"weapon", "armor"},
		Skills:         []string{"Fireball", "Shield"},
	}
)

func testTemplates() Templates {
	skills := data.NewSkillTable(fireball, shield)
	return Templates{
		Items:  data.NewItemTable(potion, sword, robe),
		Skills: skills,
		Quests: data.NewQuestTable(rats),
	}
}

func testClasses() *data.ClassTable {
	return data.NewClassTable(mage)
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewDBWithConn(mock, zap.NewNop()), mock
}

// sqlRe quotes a SQL fragment for pgxmock's regexp matcher.
func sqlRe(s string) string {
	return regexp.QuoteMeta(s)
}

func newTestPlayer(name string) *world.Player {
	p := world.NewPlayer(name, "acct", mage)
	p.Skills = NewSkillSlots(mage, testTemplates().Skills, zap.NewNop())
	return p
}
