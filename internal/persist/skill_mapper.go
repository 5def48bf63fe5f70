package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/l1jgo/worldstore/internal/data"
	"github.com/l1jgo/worldstore/internal/gametime"
	"github.com/l1jgo/worldstore/internal/world"
	"go.uber.org/zap"
)

type SkillRow struct {
	Name              string
	Level             int32
	CastRemaining     float64
	CooldownRemaining float64
}

// NewSkillSlots returns one unlearned slot per skill the class can learn.
// Class entries with no matching template are left out.
func NewSkillSlots(class *data.ClassTemplate, skills SkillLookup, log *zap.Logger) []world.Skill {
	slots := make([]world.Skill, 0, len(class.Skills))
	for _, name := range class.Skills {
		tmpl, ok := skills.ByName(name)
		if !ok {
			log.Warn("class lists unknown skill",
				zap.String("class", class.Name),
				zap.String("skill", name))
			continue
		}
		slots = append(slots, world.Skill{Template: tmpl})
	}
	return slots
}

// skillRows keeps learned skills only. Remaining times may be zero.
func skillRows(skills []world.Skill, now time.Duration) []SkillRow {
	rows := make([]SkillRow, 0, len(skills))
	for _, s := range skills {
		if s.Level <= 0 {
			continue
		}
		rows = append(rows, SkillRow{
			Name:              s.Name(),
			Level:             s.Level,
			CastRemaining:     gametime.Remaining(s.CastTimeEnd, now),
			CooldownRemaining: gametime.Remaining(s.CooldownEnd, now),
		})
	}
	return rows
}

func clampLevel(level, maxLevel int32) int32 {
	if maxLevel < 1 {
		maxLevel = 1
	}
	return max(1, min(level, maxLevel))
}

func restoreSkills(owner string, skills []world.Skill, rows []SkillRow, now time.Duration, log *zap.Logger) {
	for _, row := range rows {
		idx := -1
		for i := range skills {
			if skills[i].Name() == row.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			log.Warn("skill not learnable by class, skipping",
				zap.String("character", owner),
				zap.String("skill", row.Name))
			continue
		}
		s := &skills[idx]
		s.Level = clampLevel(row.Level, s.Template.MaxLevel)
		s.CastTimeEnd = gametime.EndTime(row.CastRemaining, now)
		s.CooldownEnd = gametime.EndTime(row.CooldownRemaining, now)
	}
}

func loadSkills(ctx context.Context, q Querier, owner string, skills []world.Skill, now time.Duration, log *zap.Logger) error {
	rows, err := q.Query(ctx,
		`SELECT name, level, cast_remaining, cooldown_remaining FROM character_skills WHERE character = $1`,
		owner,
	)
	if err != nil {
		return fmt.Errorf("query skills: %w", err)
	}
	defer rows.Close()

	var result []SkillRow
	for rows.Next() {
		var r SkillRow
		if err := rows.Scan(&r.Name, &r.Level, &r.CastRemaining, &r.CooldownRemaining); err != nil {
			return fmt.Errorf("scan skill: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	restoreSkills(owner, skills, result, now, log)
	return nil
}

func saveSkills(ctx context.Context, q Querier, owner string, skills []world.Skill, now time.Duration) error {
	if _, err := q.Exec(ctx, `DELETE FROM character_skills WHERE character = $1`, owner); err != nil {
		return fmt.Errorf("clear skills: %w", err)
	}
	for _, r := range skillRows(skills, now) {
		if _, err := q.Exec(ctx,
			`INSERT INTO character_skills (character, name, level, cast_remaining, cooldown_remaining) VALUES ($1, $2, $3, $4, $5)`,
			owner, r.Name, r.Level, r.CastRemaining, r.CooldownRemaining,
		); err != nil {
			return fmt.Errorf("insert skill %s: %w", r.Name, err)
		}
	}
	return nil
}
