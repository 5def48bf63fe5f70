package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClassTemplate describes a playable class. A character row stores the class
// name; loading it fails when no template with that name is registered.
type ClassTemplate struct {
	Name           string
	MaxLevel       int32
	BaseHealth     int32
	HealthPerLevel int32
	BaseMana       int32
	ManaPerLevel   int32
	InventorySize  int
	EquipmentSlots []string // slot categories, index = slot number
	Skills         []string // learnable skills, index = skill slot
}

// ClassTable is the closed mapping from class name to template.
type ClassTable struct {
	classes map[string]*ClassTemplate
	order   []string
}

func NewClassTable(classes ...*ClassTemplate) *ClassTable {
	t := &ClassTable{classes: make(map[string]*ClassTemplate, len(classes))}
	for _, c := range classes {
		t.add(c)
	}
	return t
}

func (t *ClassTable) add(c *ClassTemplate) {
	if _, dup := t.classes[c.Name]; !dup {
		t.order = append(t.order, c.Name)
	}
	t.classes[c.Name] = c
}

func (t *ClassTable) ByName(name string) (*ClassTemplate, bool) {
	c, ok := t.classes[name]
	return c, ok
}

// Names returns class names in file order.
func (t *ClassTable) Names() []string {
	return append([]string(nil), t.order...)
}

func (t *ClassTable) Count() int {
	return len(t.classes)
}

type classEntry struct {
	Name           string   `yaml:"name"`
	MaxLevel       int32    `yaml:"max_level"`
	BaseHealth     int32    `yaml:"base_health"`
	HealthPerLevel int32    `yaml:"health_per_level"`
	BaseMana       int32    `yaml:"base_mana"`
	ManaPerLevel   int32    `yaml:"mana_per_level"`
	InventorySize  int      `yaml:"inventory_size"`
	EquipmentSlots []string `yaml:"equipment_slots"`
	Skills         []string `yaml:"skills"`
}

type classListFile struct {
	Classes []classEntry `yaml:"classes"`
}

// LoadClassTable loads class definitions from YAML.
func LoadClassTable(path string) (*ClassTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classes: %w", err)
	}
	var f classListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse classes: %w", err)
	}
	t := &ClassTable{classes: make(map[string]*ClassTemplate, len(f.Classes))}
	for _, e := range f.Classes {
		if e.Name == "" {
			return nil, fmt.Errorf("parse classes: class without name")
		}
		maxLevel := e.MaxLevel
		if maxLevel < 1 {
			maxLevel = 1
		}
		t.add(&ClassTemplate{
			Name:           e.Name,
			MaxLevel:       maxLevel,
			BaseHealth:     e.BaseHealth,
			HealthPerLevel: e.HealthPerLevel,
			BaseMana:       e.BaseMana,
			ManaPerLevel:   e.ManaPerLevel,
			InventorySize:  e.InventorySize,
			EquipmentSlots: e.EquipmentSlots,
			Skills:         e.Skills,
		})
	}
	return t, nil
}
