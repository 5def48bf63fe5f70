package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type QuestTemplate struct {
	Name     string
	Required int32 // progress needed to complete
}

type QuestTable struct {
	quests map[string]*QuestTemplate
}

func NewQuestTable(quests ...*QuestTemplate) *QuestTable {
	t := &QuestTable{quests: make(map[string]*QuestTemplate, len(quests))}
	for _, q := range quests {
		t.quests[q.Name] = q
	}
	return t
}

func (t *QuestTable) ByName(name string) (*QuestTemplate, bool) {
	q, ok := t.quests[name]
	return q, ok
}

func (t *QuestTable) Count() int {
	return len(t.quests)
}

type questListFile struct {
	Quests []struct {
		Name     string `yaml:"name"`
		Required int32  `yaml:"required"`
	} `yaml:"quests"`
}

func LoadQuestTable(path string) (*QuestTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quests: %w", err)
	}
	var f questListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse quests: %w", err)
	}
	t := &QuestTable{quests: make(map[string]*QuestTemplate, len(f.Quests))}
	for _, e := range f.Quests {
		t.quests[e.Name] = &QuestTemplate{Name: e.Name, Required: e.Required}
	}
	return t, nil
}
