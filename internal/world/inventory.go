package world

import "github.com/l1jgo/worldstore/internal/data"

// Item is a live item instance: a template plus the per-instance fields
// that change during play.
type Item struct {
	Template           *data.ItemTemplate
	Durability         int32
	SummonedHealth     int32
	SummonedLevel      int32
	SummonedExperience int64
}

// NewItem creates an instance at full durability.
func NewItem(tmpl *data.ItemTemplate) Item {
	return Item{Template: tmpl, Durability: tmpl.MaxDurability}
}

// Name returns the template name, or "" for a zero Item.
func (it Item) Name() string {
	if it.Template == nil {
		return ""
	}
	return it.Template.Name
}

// ItemSlot is one inventory or equipment position. Amount 0 means empty.
type ItemSlot struct {
	Item   Item
	Amount int32
}

func (s ItemSlot) Empty() bool {
	return s.Amount <= 0 || s.Item.Template == nil
}

// NewSlots returns size empty slots.
func NewSlots(size int) []ItemSlot {
	if size < 0 {
		size = 0
	}
	return make([]ItemSlot, size)
}

// CountFilled returns the number of non-empty slots.
func CountFilled(slots []ItemSlot) int {
	n := 0
	for _, s := range slots {
		if !s.Empty() {
			n++
		}
	}
	return n
}
