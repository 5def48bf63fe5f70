package persist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/l1jgo/worldstore/internal/gametime"
)

type CooldownRow struct {
	Category  string
	Remaining float64 // seconds
}

// cooldownRows keeps only cooldowns that have time left, sorted by category.
func cooldownRows(cooldowns map[string]time.Duration, now time.Duration) []CooldownRow {
	rows := make([]CooldownRow, 0, len(cooldowns))
	for category, end := range cooldowns {
		remaining := gametime.Remaining(end, now)
		if !gametime.Persistable(remaining) {
			continue
		}
		rows = append(rows, CooldownRow{Category: category, Remaining: remaining})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })
	return rows
}

func restoreCooldowns(rows []CooldownRow, now time.Duration) map[string]time.Duration {
	m := make(map[string]time.Duration, len(rows))
	for _, r := range rows {
		m[r.Category] = gametime.EndTime(r.Remaining, now)
	}
	return m
}

func loadCooldowns(ctx context.Context, q Querier, owner string, now time.Duration) (map[string]time.Duration, error) {
	rows, err := q.Query(ctx,
		`SELECT category, remaining FROM character_itemcooldowns WHERE character = $1`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query item cooldowns: %w", err)
	}
	defer rows.Close()

	var result []CooldownRow
	for rows.Next() {
		var r CooldownRow
		if err := rows.Scan(&r.Category, &r.Remaining); err != nil {
			return nil, fmt.Errorf("scan item cooldown: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return restoreCooldowns(result, now), nil
}

func saveCooldowns(ctx context.Context, q Querier, owner string, cooldowns map[string]time.Duration, now time.Duration) error {
	if _, err := q.Exec(ctx, `DELETE FROM character_itemcooldowns WHERE character = $1`, owner); err != nil {
		return fmt.Errorf("clear item cooldowns: %w", err)
	}
	for _, r := range cooldownRows(cooldowns, now) {
		if _, err := q.Exec(ctx,
			`INSERT INTO character_itemcooldowns (character, category, remaining) VALUES ($1, $2, $3)`,
			owner, r.Category, r.Remaining,
		); err != nil {
			return fmt.Errorf("insert item cooldown %s: %w", r.Category, err)
		}
	}
	return nil
}
