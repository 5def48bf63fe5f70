package persist

import (
	"github.com/l1jgo/worldstore/internal/data"
	"github.com/l1jgo/worldstore/internal/world"
)

// Template lookups by stable name. The data tables implement all of them.

type ItemLookup interface {
	ByName(name string) (*data.ItemTemplate, bool)
}

type SkillLookup interface {
	ByName(name string) (*data.SkillTemplate, bool)
}

type QuestLookup interface {
	ByName(name string) (*data.QuestTemplate, bool)
}

// ClassRegistry maps a stored class name to its template.
type ClassRegistry interface {
	ByName(name string) (*data.ClassTemplate, bool)
}

// Templates bundles the lookups a character load needs.
type Templates struct {
	Items  ItemLookup
	Skills SkillLookup
	Quests QuestLookup
}

type SpawnValidator interface {
	IsValidSpawn(p world.Position) bool
}

type StartPositions interface {
	Nearest(p world.Position) world.Position
}
