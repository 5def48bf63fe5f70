package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/l1jgo/worldstore/internal/gametime"
	"github.com/l1jgo/worldstore/internal/world"
	"go.uber.org/zap"
)

type BuffRow struct {
	Name      string
	Level     int32
	Remaining float64
}

// buffRows drops buffs that already ran out.
func buffRows(buffs []world.Buff, now time.Duration) []BuffRow {
	rows := make([]BuffRow, 0, len(buffs))
	for _, b := range buffs {
		remaining := gametime.Remaining(b.BuffTimeEnd, now)
		if !gametime.Persistable(remaining) {
			continue
		}
		rows = append(rows, BuffRow{Name: b.Name(), Level: b.Level, Remaining: remaining})
	}
	return rows
}

func restoreBuffs(owner string, rows []BuffRow, skills SkillLookup, now time.Duration, log *zap.Logger) []world.Buff {
	buffs := make([]world.Buff, 0, len(rows))
	for _, row := range rows {
		tmpl, ok := skills.ByName(row.Name)
		if !ok || !tmpl.IsBuff {
			log.Warn("unknown buff template, skipping",
				zap.String("character", owner),
				zap.String("buff", row.Name))
			continue
		}
		buffs = append(buffs, world.Buff{
			Template:    tmpl,
			Level:       clampLevel(row.Level, tmpl.MaxLevel),
			BuffTimeEnd: gametime.EndTime(row.Remaining, now),
		})
	}
	return buffs
}

func loadBuffs(ctx context.Context, q Querier, owner string, skills SkillLookup, now time.Duration, log *zap.Logger) ([]world.Buff, error) {
	rows, err := q.Query(ctx,
		`SELECT name, level, remaining FROM character_buffs WHERE character = $1`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query buffs: %w", err)
	}
	defer rows.Close()

	var result []BuffRow
	for rows.Next() {
		var r BuffRow
		if err := rows.Scan(&r.Name, &r.Level, &r.Remaining); err != nil {
			return nil, fmt.Errorf("scan buff: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return restoreBuffs(owner, result, skills, now, log), nil
}

func saveBuffs(ctx context.Context, q Querier, owner string, buffs []world.Buff, now time.Duration) error {
	if _, err := q.Exec(ctx, `DELETE FROM character_buffs WHERE character = $1`, owner); err != nil {
		return fmt.Errorf("clear buffs: %w", err)
	}
	for _, r := range buffRows(buffs, now) {
		if _, err := q.Exec(ctx,
			`INSERT INTO character_buffs (character, name, level, remaining) VALUES ($1, $2, $3, $4)`,
			owner, r.Name, r.Level, r.Remaining,
		); err != nil {
			return fmt.Errorf("insert buff %s: %w", r.Name, err)
		}
	}
	return nil
}
