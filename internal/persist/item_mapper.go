package persist

import (
	"context"
	"fmt"

	"github.com/l1jgo/worldstore/internal/world"
	"go.uber.org/zap"
)

const (
	tableInventory = "character_inventory"
	tableEquipment = "character_equipment"
)

// ItemSlotRow mirrors one row of character_inventory or character_equipment.
type ItemSlotRow struct {
	Slot               int32
	Name               string
	Amount             int32
	Durability         int32
	SummonedHealth     int32
	SummonedLevel      int32
	SummonedExperience int64
}

// itemSlotRows converts the non-empty slots to rows.
func itemSlotRows(slots []world.ItemSlot) []ItemSlotRow {
	rows := make([]ItemSlotRow, 0, world.CountFilled(slots))
	for i, s := range slots {
		if s.Empty() {
			continue
		}
		rows = append(rows, ItemSlotRow{
			Slot:               int32(i),
			Name:               s.Item.Name(),
			Amount:             s.Amount,
			Durability:         s.Item.Durability,
			SummonedHealth:     s.Item.SummonedHealth,
			SummonedLevel:      s.Item.SummonedLevel,
			SummonedExperience: s.Item.SummonedExperience,
		})
	}
	return rows
}

// restoreItemSlots writes rows into slots. Rows outside the slot range or
// naming an unknown item are dropped with a warning.
func restoreItemSlots(owner, table string, slots []world.ItemSlot, rows []ItemSlotRow, items ItemLookup, log *zap.Logger) {
	for _, row := range rows {
		if row.Slot < 0 || int(row.Slot) >= len(slots) {
			log.Warn("item slot out of range, skipping",
				zap.String("character", owner),
				zap.String("table", table),
				zap.Int32("slot", row.Slot),
				zap.Int("size", len(slots)))
			continue
		}
		tmpl, ok := items.ByName(row.Name)
		if !ok {
			log.Warn("unknown item template, skipping",
				zap.String("character", owner),
				zap.String("table", table),
				zap.String("item", row.Name))
			continue
		}
		item := world.NewItem(tmpl)
		item.Durability = min(row.Durability, tmpl.MaxDurability)
		item.SummonedHealth = row.SummonedHealth
		item.SummonedLevel = row.SummonedLevel
		item.SummonedExperience = row.SummonedExperience
		slots[row.Slot] = world.ItemSlot{Item: item, Amount: row.Amount}
	}
}

func queryItemSlots(ctx context.Context, q Querier, table, owner string) ([]ItemSlotRow, error) {
	rows, err := q.Query(ctx,
		`SELECT slot, name, amount, durability, summoned_health, summoned_level, summoned_experience FROM `+table+` WHERE character = $1 ORDER BY slot`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var result []ItemSlotRow
	for rows.Next() {
		var r ItemSlotRow
		if err := rows.Scan(&r.Slot, &r.Name, &r.Amount, &r.Durability,
			&r.SummonedHealth, &r.SummonedLevel, &r.SummonedExperience); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// loadItemSlots fills slots from table with a single query.
func loadItemSlots(ctx context.Context, q Querier, table, owner string, slots []world.ItemSlot, items ItemLookup, log *zap.Logger) error {
	rows, err := queryItemSlots(ctx, q, table, owner)
	if err != nil {
		return err
	}
	restoreItemSlots(owner, table, slots, rows, items, log)
	return nil
}

// saveItemSlots replaces every row of owner in table.
func saveItemSlots(ctx context.Context, q Querier, table, owner string, slots []world.ItemSlot) error {
	if _, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE character = $1`, owner); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for _, r := range itemSlotRows(slots) {
		if _, err := q.Exec(ctx,
			`INSERT INTO `+table+` (character, slot, name, amount, durability, summoned_health, summoned_level, summoned_experience) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			owner, r.Slot, r.Name, r.Amount, r.Durability,
			r.SummonedHealth, r.SummonedLevel, r.SummonedExperience,
		); err != nil {
			return fmt.Errorf("insert %s slot %d: %w", table, r.Slot, err)
		}
	}
	return nil
}
