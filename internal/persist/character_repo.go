package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/worldstore/internal/core/event"
	"github.com/l1jgo/worldstore/internal/gametime"
	"github.com/l1jgo/worldstore/internal/world"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrUnknownClass is returned when a stored character names a class that
// is not registered.
var ErrUnknownClass = errors.New("unknown class")

// CharacterRow mirrors the scalar columns of the characters table.
type CharacterRow struct {
	Name            string
	Account         string
	ClassName       string
	X, Y, Z         float64
	Level           int32
	Health          int32
	Mana            int32
	Strength        int32
	Intelligence    int32
	Experience      int64
	SkillExperience int64
	Gold            int64
	Coins           int64
	GameMaster      bool
}

func characterRow(p *world.Player) CharacterRow {
	return CharacterRow{
		Name:            p.Name,
		Account:         p.Account,
		ClassName:       p.ClassName,
		X:               p.Position.X,
		Y:               p.Position.Y,
		Z:               p.Position.Z,
		Level:           p.Level,
		Health:          p.Health,
		Mana:            p.Mana,
		Strength:        p.Strength,
		Intelligence:    p.Intelligence,
		Experience:      p.Experience,
		SkillExperience: p.SkillExperience,
		Gold:            p.Gold,
		Coins:           p.Coins,
		GameMaster:      p.GameMaster,
	}
}

// CharacterDeps are the collaborators a CharacterRepo reads templates,
// spawn rules and time from.
type CharacterDeps struct {
	DB        *DB
	Guilds    *GuildRepo
	Templates Templates
	Spawns    SpawnValidator
	Starts    StartPositions
	Clock     gametime.Clock
	Bus       *event.Bus
	Log       *zap.Logger
}

type CharacterRepo struct {
	db        *DB
	guilds    *GuildRepo
	templates Templates
	spawns    SpawnValidator
	starts    StartPositions
	clock     gametime.Clock
	bus       *event.Bus
	log       *zap.Logger
}

func NewCharacterRepo(deps CharacterDeps) *CharacterRepo {
	r := &CharacterRepo{
		db:        deps.DB,
		guilds:    deps.Guilds,
		templates: deps.Templates,
		spawns:    deps.Spawns,
		starts:    deps.Starts,
		clock:     deps.Clock,
		bus:       deps.Bus,
		log:       deps.Log,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.clock == nil {
		r.clock = gametime.NewServerClock()
	}
	if r.guilds == nil {
		r.guilds = NewGuildRepo(deps.DB, nil, deps.Bus, r.log)
	}
	return r
}

// Exists reports whether the name is taken, counting deleted characters.
func (r *CharacterRepo) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM characters WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("character exists %s: %w", name, err)
	}
	return exists, nil
}

// Delete soft-deletes a character. Sub-table rows are left in place.
func (r *CharacterRepo) Delete(ctx context.Context, name string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters SET deleted = TRUE WHERE name = $1`, name,
	)
	return err
}

func (r *CharacterRepo) Undelete(ctx context.Context, name string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE characters SET deleted = FALSE WHERE name = $1`, name,
	)
	return err
}

// ListForAccount returns the account's characters in creation order.
func (r *CharacterRepo) ListForAccount(ctx context.Context, account string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT name FROM characters WHERE account = $1 AND NOT deleted ORDER BY created_seq`,
		account,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetAllOffline clears online flags left behind by an unclean shutdown.
func (r *CharacterRepo) SetAllOffline(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE characters SET online = FALSE WHERE online`)
	if err != nil {
		return 0, fmt.Errorf("reset online flags: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Load restores a character with all of its sub-entities. It returns nil
// without error when no live character has that name. A preview load leaves
// the stored online flag untouched.
func (r *CharacterRepo) Load(ctx context.Context, name string, classes ClassRegistry, preview bool) (*world.Player, error) {
	ctx, span := tracer.Start(ctx, "CharacterRepo.Load", trace.WithAttributes(
		attribute.String("character", name),
		attribute.Bool("preview", preview)))
	defer span.End()

	var row CharacterRow
	err := r.db.Pool.QueryRow(ctx,
		`SELECT name, account, class_name, x, y, z, level, health, mana, strength, intelligence, experience, skill_experience, gold, coins, game_master FROM characters WHERE name = $1 AND NOT deleted`,
		name,
	).Scan(
		&row.Name, &row.Account, &row.ClassName, &row.X, &row.Y, &row.Z,
		&row.Level, &row.Health, &row.Mana, &row.Strength, &row.Intelligence,
		&row.Experience, &row.SkillExperience, &row.Gold, &row.Coins, &row.GameMaster,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load character %s: %w", name, err)
	}

	class, ok := classes.ByName(row.ClassName)
	if !ok {
		r.log.Error("character has unknown class",
			zap.String("character", name),
			zap.String("class", row.ClassName))
		return nil, fmt.Errorf("load character %s: class %q: %w", name, row.ClassName, ErrUnknownClass)
	}

	p := &world.Player{
		Name:            row.Name,
		Account:         row.Account,
		ClassName:       row.ClassName,
		Class:           class,
		Position:        world.Position{X: row.X, Y: row.Y, Z: row.Z},
		Level:           clampLevel(row.Level, class.MaxLevel),
		Strength:        row.Strength,
		Intelligence:    row.Intelligence,
		Experience:      row.Experience,
		SkillExperience: row.SkillExperience,
		Gold:            row.Gold,
		Coins:           row.Coins,
		GameMaster:      row.GameMaster,
		Inventory:       world.NewSlots(class.InventorySize),
		Equipment:       world.NewSlots(len(class.EquipmentSlots)),
		Skills:          NewSkillSlots(class, r.templates.Skills, r.log),
	}
	r.validatePosition(p)

	if err := r.loadParts(ctx, r.db.Pool, p); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load character %s: %w", name, err)
	}

	// Max health and mana depend on equipment and buffs.
	p.Health = min(row.Health, p.MaxHealth())
	p.Mana = min(row.Mana, p.MaxMana())

	if !preview {
		if _, err := r.db.Pool.Exec(ctx,
			`UPDATE characters SET online = TRUE, last_saved = NOW() WHERE name = $1`, name,
		); err != nil {
			return nil, fmt.Errorf("mark %s online: %w", name, err)
		}
		if p.Guild != nil {
			p.Guild.SetOnline(p.Name, true, p.Level)
		}
	}

	event.Emit(r.bus, event.CharacterLoaded{Player: p, Preview: preview})
	return p, nil
}

func (r *CharacterRepo) validatePosition(p *world.Player) {
	if r.spawns == nil || r.spawns.IsValidSpawn(p.Position) {
		return
	}
	invalid := p.Position
	if r.starts != nil {
		p.Position = r.starts.Nearest(invalid)
	} else {
		p.Position = world.Position{}
	}
	r.log.Info("invalid position, moved to start position",
		zap.String("character", p.Name),
		zap.Float64("x", invalid.X),
		zap.Float64("z", invalid.Z),
		zap.Float64("start_x", p.Position.X),
		zap.Float64("start_z", p.Position.Z))
}

func (r *CharacterRepo) loadParts(ctx context.Context, q Querier, p *world.Player) error {
	now := r.clock.Now()
	if err := loadItemSlots(ctx, q, tableInventory, p.Name, p.Inventory, r.templates.Items, r.log); err != nil {
		return err
	}
	if err := loadItemSlots(ctx, q, tableEquipment, p.Name, p.Equipment, r.templates.Items, r.log); err != nil {
		return err
	}
	cooldowns, err := loadCooldowns(ctx, q, p.Name, now)
	if err != nil {
		return err
	}
	p.ItemCooldowns = cooldowns
	if err := loadSkills(ctx, q, p.Name, p.Skills, now, r.log); err != nil {
		return err
	}
	if p.Buffs, err = loadBuffs(ctx, q, p.Name, r.templates.Skills, now, r.log); err != nil {
		return err
	}
	if p.Quests, err = loadQuests(ctx, q, p.Name, r.templates.Quests, r.log); err != nil {
		return err
	}
	return r.guilds.LoadOnDemand(ctx, q, p)
}

// Save writes the complete character, and its guild if it has one, in one
// transaction.
func (r *CharacterRepo) Save(ctx context.Context, p *world.Player, online bool) error {
	ctx, span := tracer.Start(ctx, "CharacterRepo.Save", trace.WithAttributes(attribute.String("character", p.Name)))
	defer span.End()

	if err := r.db.InTx(ctx, func(q Querier) error {
		return r.SaveIn(ctx, q, p, online)
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("save character %s: %w", p.Name, err)
	}
	r.emitSaved([]*world.Player{p}, online)
	return nil
}

// SaveIn writes the character through q without opening a transaction of
// its own. The caller commits and emits notifications.
func (r *CharacterRepo) SaveIn(ctx context.Context, q Querier, p *world.Player, online bool) error {
	row := characterRow(p)
	if _, err := q.Exec(ctx,
		`INSERT INTO characters (name, account, class_name, x, y, z, level, health, mana, strength, intelligence, experience, skill_experience, gold, coins, game_master, online, last_saved) `+
			`VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW()) `+
			`ON CONFLICT (name) DO UPDATE SET account = EXCLUDED.account, class_name = EXCLUDED.class_name, `+
			`x = EXCLUDED.x, y = EXCLUDED.y, z = EXCLUDED.z, level = EXCLUDED.level, health = EXCLUDED.health, mana = EXCLUDED.mana, `+
			`strength = EXCLUDED.strength, intelligence = EXCLUDED.intelligence, experience = EXCLUDED.experience, `+
			`skill_experience = EXCLUDED.skill_experience, gold = EXCLUDED.gold, coins = EXCLUDED.coins, `+
			`game_master = EXCLUDED.game_master, online = EXCLUDED.online, last_saved = NOW()`,
		row.Name, row.Account, row.ClassName, row.X, row.Y, row.Z,
		row.Level, row.Health, row.Mana, row.Strength, row.Intelligence,
		row.Experience, row.SkillExperience, row.Gold, row.Coins, row.GameMaster, online,
	); err != nil {
		return fmt.Errorf("upsert character: %w", err)
	}

	now := r.clock.Now()
	if err := saveItemSlots(ctx, q, tableInventory, p.Name, p.Inventory); err != nil {
		return err
	}
	if err := saveItemSlots(ctx, q, tableEquipment, p.Name, p.Equipment); err != nil {
		return err
	}
	if err := saveCooldowns(ctx, q, p.Name, p.ItemCooldowns, now); err != nil {
		return err
	}
	if err := saveSkills(ctx, q, p.Name, p.Skills, now); err != nil {
		return err
	}
	if err := saveBuffs(ctx, q, p.Name, p.Buffs, now); err != nil {
		return err
	}
	if err := saveQuests(ctx, q, p.Name, p.Quests); err != nil {
		return err
	}
	if p.InGuild() {
		if err := r.guilds.SaveIn(ctx, q, p.Guild); err != nil {
			return err
		}
	}
	return nil
}

// SaveMany saves every player in a single transaction. One failure rolls
// back the whole batch.
func (r *CharacterRepo) SaveMany(ctx context.Context, players []*world.Player, online bool) error {
	if len(players) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "CharacterRepo.SaveMany", trace.WithAttributes(attribute.Int("players", len(players))))
	defer span.End()

	err := r.db.InTx(ctx, func(q Querier) error {
		for _, p := range players {
			if err := r.SaveIn(ctx, q, p, online); err != nil {
				return fmt.Errorf("save character %s: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("save batch: %w", err)
	}
	r.emitSaved(players, online)
	return nil
}

// emitSaved announces committed characters and, once each, the guilds
// written along with them.
func (r *CharacterRepo) emitSaved(players []*world.Player, online bool) {
	seen := make(map[*world.Guild]bool)
	for _, p := range players {
		event.Emit(r.bus, event.CharacterSaved{Player: p, Online: online})
		if p.Guild != nil && !seen[p.Guild] {
			seen[p.Guild] = true
			event.Emit(r.bus, event.GuildSaved{Guild: p.Guild})
		}
	}
}
