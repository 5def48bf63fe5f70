package persist

import (
	"context"
	"fmt"

	"github.com/l1jgo/worldstore/internal/world"
	"go.uber.org/zap"
)

type QuestRow struct {
	Name      string
	Progress  int32
	Completed bool
}

func questRows(quests []world.Quest) []QuestRow {
	rows := make([]QuestRow, 0, len(quests))
	for _, qs := range quests {
		rows = append(rows, QuestRow{Name: qs.Name(), Progress: qs.Progress, Completed: qs.Completed})
	}
	return rows
}

func restoreQuests(owner string, rows []QuestRow, quests QuestLookup, log *zap.Logger) []world.Quest {
	result := make([]world.Quest, 0, len(rows))
	for _, row := range rows {
		tmpl, ok := quests.ByName(row.Name)
		if !ok {
			log.Warn("unknown quest template, skipping",
				zap.String("character", owner),
				zap.String("quest", row.Name))
			continue
		}
		result = append(result, world.Quest{Template: tmpl, Progress: row.Progress, Completed: row.Completed})
	}
	return result
}

func loadQuests(ctx context.Context, q Querier, owner string, quests QuestLookup, log *zap.Logger) ([]world.Quest, error) {
	rows, err := q.Query(ctx,
		`SELECT name, progress, completed FROM character_quests WHERE character = $1`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query quests: %w", err)
	}
	defer rows.Close()

	var result []QuestRow
	for rows.Next() {
		var r QuestRow
		if err := rows.Scan(&r.Name, &r.Progress, &r.Completed); err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return restoreQuests(owner, result, quests, log), nil
}

func saveQuests(ctx context.Context, q Querier, owner string, quests []world.Quest) error {
	if _, err := q.Exec(ctx, `DELETE FROM character_quests WHERE character = $1`, owner); err != nil {
		return fmt.Errorf("clear quests: %w", err)
	}
	for _, r := range questRows(quests) {
		if _, err := q.Exec(ctx,
			`INSERT INTO character_quests (character, name, progress, completed) VALUES ($1, $2, $3, $4)`,
			owner, r.Name, r.Progress, r.Completed,
		); err != nil {
			return fmt.Errorf("insert quest %s: %w", r.Name, err)
		}
	}
	return nil
}
