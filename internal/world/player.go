package world

import (
	"time"

	"github.com/l1jgo/worldstore/internal/data"
)

// Position is a point in the game world.
type Position struct {
	X, Y, Z float64
}

// Skill is a learnable skill slot. Level 0 means not learned yet.
// CastTimeEnd and CooldownEnd are measured on the server clock.
type Skill struct {
	Template    *data.SkillTemplate
	Level       int32
	CastTimeEnd time.Duration
	CooldownEnd time.Duration
}

func (s Skill) Name() string { return s.Template.Name }

// Buff is an active timed effect.
type Buff struct {
	Template    *data.SkillTemplate
	Level       int32
	BuffTimeEnd time.Duration
}

func (b Buff) Name() string { return b.Template.Name }

type Quest struct {
	Template  *data.QuestTemplate
	Progress  int32
	Completed bool
}

func (q Quest) Name() string { return q.Template.Name }

// Player holds the in-memory state of one character.
type Player struct {
	Name      string
	Account   string
	ClassName string
	Class     *data.ClassTemplate

	Position Position

	Level           int32
	Health          int32
	Mana            int32
	Strength        int32
	Intelligence    int32
	Experience      int64
	SkillExperience int64
	Gold            int64
	Coins           int64
	GameMaster      bool

	Inventory []ItemSlot
	Equipment []ItemSlot

	// ItemCooldowns maps cooldown category to its end on the server clock.
	ItemCooldowns map[string]time.Duration

	Skills []Skill
	Buffs  []Buff
	Quests []Quest

	Guild *Guild // nil when not in a guild
}

// NewPlayer creates a level 1 character of the given class with empty
// inventory, equipment and unlearned skill slots.
func NewPlayer(name, account string, class *data.ClassTemplate) *Player {
	p := &Player{
		Name:          name,
		Account:       account,
		ClassName:     class.Name,
		Class:         class,
		Level:         1,
		Inventory:     NewSlots(class.InventorySize),
		Equipment:     NewSlots(len(class.EquipmentSlots)),
		ItemCooldowns: make(map[string]time.Duration),
	}
	p.Health = p.MaxHealth()
	p.Mana = p.MaxMana()
	return p
}

func (p *Player) InGuild() bool {
	return p.Guild != nil
}

// MaxHealth depends on level, equipment and active buffs, so it is only
// meaningful once all of those are loaded.
func (p *Player) MaxHealth() int32 {
	var base int32
	if p.Class != nil {
		base = p.Class.BaseHealth + p.Class.HealthPerLevel*(p.Level-1)
	}
	eq, _ := EquipmentBonus(p.Equipment)
	var buffs int32
	for _, b := range p.Buffs {
		buffs += b.Template.BuffHealth * b.Level
	}
	return base + eq + buffs
}

func (p *Player) MaxMana() int32 {
	var base int32
	if p.Class != nil {
		base = p.Class.BaseMana + p.Class.ManaPerLevel*(p.Level-1)
	}
	_, eq := EquipmentBonus(p.Equipment)
	var buffs int32
	for _, b := range p.Buffs {
		buffs += b.Template.BuffMana * b.Level
	}
	return base + eq + buffs
}

// SkillIndex returns the slot of the named skill, or -1.
func (p *Player) SkillIndex(name string) int {
	for i, s := range p.Skills {
		if s.Template.Name == name {
			return i
		}
	}
	return -1
}

// ItemCooldownRemaining returns the seconds left on a cooldown category.
func (p *Player) ItemCooldownRemaining(category string, now time.Duration) time.Duration {
	end, ok := p.ItemCooldowns[category]
	if !ok || end <= now {
		return 0
	}
	return end - now
}
