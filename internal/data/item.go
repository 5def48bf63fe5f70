package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ItemTemplate is the static definition an inventory or equipment row
// points at by name.
type ItemTemplate struct {
	Name          string
	MaxStack      int32
	MaxDurability int32
	EquipCategory string // "" for non-equipment
	BonusHealth   int32  // added to max health while equipped
	BonusMana     int32  // added to max mana while equipped
	CooldownGroup string // item cooldown category shared by usable items
}

// ItemTable holds all item templates indexed by name.
type ItemTable struct {
	items map[string]*ItemTemplate
}

func NewItemTable(items ...*ItemTemplate) *ItemTable {
	t := &ItemTable{items: make(map[string]*ItemTemplate, len(items))}
	for _, it := range items {
		t.items[it.Name] = it
	}
	return t
}

// ByName returns a template by its stable name.
func (t *ItemTable) ByName(name string) (*ItemTemplate, bool) {
	it, ok := t.items[name]
	return it, ok
}

func (t *ItemTable) Count() int {
	return len(t.items)
}

// --- YAML loading ---

type itemEntry struct {
	Name          string `yaml:"name"`
	MaxStack      int32  `yaml:"max_stack"`
	MaxDurability int32  `yaml:"max_durability"`
	EquipCategory string `yaml:"equip_category"`
	BonusHealth   int32  `yaml:"bonus_health"`
	BonusMana     int32  `yaml:"bonus_mana"`
	CooldownGroup string `yaml:"cooldown_group"`
}

type itemListFile struct {
	Items []itemEntry `yaml:"items"`
}

// LoadItemTable loads item templates from YAML.
func LoadItemTable(path string) (*ItemTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	var f itemListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}
	t := &ItemTable{items: make(map[string]*ItemTemplate, len(f.Items))}
	for i := range f.Items {
		e := &f.Items[i]
		if e.Name == "" {
			return nil, fmt.Errorf("parse items: entry %d has no name", i)
		}
		maxStack := e.MaxStack
		if maxStack <= 0 {
			maxStack = 1
		}
		t.items[e.Name] = &ItemTemplate{
			Name:          e.Name,
			MaxStack:      maxStack,
			MaxDurability: e.MaxDurability,
			EquipCategory: e.EquipCategory,
			BonusHealth:   e.BonusHealth,
			BonusMana:     e.BonusMana,
			CooldownGroup: e.CooldownGroup,
		}
	}
	return t, nil
}
