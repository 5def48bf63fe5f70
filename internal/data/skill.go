package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SkillTemplate holds a single skill definition. Buff skills additionally
// carry the stat bonus their buff grants per level.
type SkillTemplate struct {
	Name         string
	MaxLevel     int32
	CastTime     float64 // seconds
	Cooldown     float64 // seconds
	IsBuff       bool
	BuffDuration float64 // seconds
	BuffHealth   int32   // max health bonus per buff level
	BuffMana     int32   // max mana bonus per buff level
}

// SkillTable holds all skills indexed by name.
type SkillTable struct {
	skills map[string]*SkillTemplate
}

func NewSkillTable(skills ...*SkillTemplate) *SkillTable {
	t := &SkillTable{skills: make(map[string]*SkillTemplate, len(skills))}
	for _, s := range skills {
		t.skills[s.Name] = s
	}
	return t
}

// ByName returns a skill by its exact name.
func (t *SkillTable) ByName(name string) (*SkillTemplate, bool) {
	s, ok := t.skills[name]
	return s, ok
}

// Count returns total loaded skills.
func (t *SkillTable) Count() int {
	return len(t.skills)
}

// --- YAML loading ---

type skillEntry struct {
	Name         string  `yaml:"name"`
	MaxLevel     int32   `yaml:"max_level"`
	CastTime     float64 `yaml:"cast_time"`
	Cooldown     float64 `yaml:"cooldown"`
	Buff         bool    `yaml:"buff"`
	BuffDuration float64 `yaml:"buff_duration"`
	BuffHealth   int32   `yaml:"buff_health"`
	BuffMana     int32   `yaml:"buff_mana"`
}

type skillListFile struct {
	Skills []skillEntry `yaml:"skills"`
}

// LoadSkillTable loads skill definitions from YAML.
func LoadSkillTable(path string) (*SkillTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skills: %w", err)
	}
	var f skillListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse skills: %w", err)
	}
	t := &SkillTable{skills: make(map[string]*SkillTemplate, len(f.Skills))}
	for i := range f.Skills {
		e := &f.Skills[i]
		maxLevel := e.MaxLevel
		if maxLevel < 1 {
			maxLevel = 1
		}
		t.skills[e.Name] = &SkillTemplate{
			Name:         e.Name,
			MaxLevel:     maxLevel,
			CastTime:     e.CastTime,
			Cooldown:     e.Cooldown,
			IsBuff:       e.Buff,
			BuffDuration: e.BuffDuration,
			BuffHealth:   e.BuffHealth,
			BuffMana:     e.BuffMana,
		}
	}
	return t, nil
}
