package world

// EquipmentBonus sums the max health/mana contributions of equipped items.
func EquipmentBonus(equipment []ItemSlot) (health, mana int32) {
	for _, s := range equipment {
		if s.Empty() {
			continue
		}
		health += s.Item.Template.BonusHealth
		mana += s.Item.Template.BonusMana
	}
	return health, mana
}
