package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/worldstore/internal/core/event"
	"github.com/l1jgo/worldstore/internal/world"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// GuildRepo materializes guilds on demand and persists their info and
// membership. Membership rows are the only stored member list.
type GuildRepo struct {
	db     *DB
	cache  *GuildCache
	online *world.Registry
	bus    *event.Bus
	log    *zap.Logger
}

func NewGuildRepo(db *DB, online *world.Registry, bus *event.Bus, log *zap.Logger) *GuildRepo {
	if online == nil {
		online = world.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GuildRepo{db: db, cache: NewGuildCache(), online: online, bus: bus, log: log}
}

func (r *GuildRepo) Cache() *GuildCache {
	return r.cache
}

func (r *GuildRepo) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM guild_info WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("guild exists %s: %w", name, err)
	}
	return exists, nil
}

// Load returns the stored guild, materializing it through the cache. It
// returns nil without error when no guild info row exists.
func (r *GuildRepo) Load(ctx context.Context, name string) (*world.Guild, error) {
	if g, ok := r.cache.Get(name); ok {
		return g, nil
	}
	exists, err := r.Exists(ctx, name)
	if err != nil || !exists {
		return nil, err
	}
	return r.cache.GetOrLoad(ctx, name, func(ctx context.Context) (*world.Guild, error) {
		return r.loadGuild(ctx, r.db.Pool, name)
	})
}

// LoadOnDemand attaches the player's guild, loading it through the cache
// when this is the first member to ask for it.
func (r *GuildRepo) LoadOnDemand(ctx context.Context, q Querier, p *world.Player) error {
	var name string
	err := q.QueryRow(ctx,
		`SELECT guild FROM character_guild WHERE character = $1`, p.Name,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		p.Guild = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("query guild membership: %w", err)
	}

	g, err := r.cache.GetOrLoad(ctx, name, func(ctx context.Context) (*world.Guild, error) {
		return r.loadGuild(ctx, q, name)
	})
	if err != nil {
		return err
	}
	p.Guild = g
	return nil
}

func (r *GuildRepo) loadGuild(ctx context.Context, q Querier, name string) (*world.Guild, error) {
	var notice string
	err := q.QueryRow(ctx,
		`SELECT notice FROM guild_info WHERE name = $1`, name,
	).Scan(&notice)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("query guild info %s: %w", name, err)
	}

	rows, err := q.Query(ctx,
		`SELECT character, rank FROM character_guild WHERE guild = $1 ORDER BY character`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("query guild members %s: %w", name, err)
	}
	var members []world.GuildMember
	for rows.Next() {
		var m world.GuildMember
		var rank int32
		if err := rows.Scan(&m.Name, &rank); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan guild member: %w", err)
		}
		m.Rank = world.GuildRank(rank)
		members = append(members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The member rows must be fully read before issuing per-member queries
	// on the same session.
	for i := range members {
		m := &members[i]
		if p, ok := r.online.Get(m.Name); ok {
			m.Level = p.Level
			m.Online = true
			continue
		}
		m.Level = 1
		err := q.QueryRow(ctx,
			`SELECT level FROM characters WHERE name = $1`, m.Name,
		).Scan(&m.Level)
		if errors.Is(err, pgx.ErrNoRows) {
			m.Level = 1
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query member level %s: %w", m.Name, err)
		}
	}

	r.log.Debug("guild loaded",
		zap.String("guild", name),
		zap.Int("members", len(members)))
	return world.NewGuild(name, notice, members), nil
}

// Save persists g in its own transaction.
func (r *GuildRepo) Save(ctx context.Context, g *world.Guild) error {
	ctx, span := tracer.Start(ctx, "GuildRepo.Save", trace.WithAttributes(attribute.String("guild", g.Name)))
	defer span.End()

	if err := r.db.InTx(ctx, func(q Querier) error {
		return r.SaveIn(ctx, q, g)
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("save guild %s: %w", g.Name, err)
	}
	event.Emit(r.bus, event.GuildSaved{Guild: g})
	return nil
}

// SaveIn writes g through q without opening a transaction.
func (r *GuildRepo) SaveIn(ctx context.Context, q Querier, g *world.Guild) error {
	if _, err := q.Exec(ctx,
		`INSERT INTO guild_info (name, notice) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET notice = EXCLUDED.notice`,
		g.Name, g.Notice(),
	); err != nil {
		return fmt.Errorf("upsert guild info: %w", err)
	}
	if _, err := q.Exec(ctx, `DELETE FROM character_guild WHERE guild = $1`, g.Name); err != nil {
		return fmt.Errorf("clear guild members: %w", err)
	}
	for _, m := range g.Members() {
		if _, err := q.Exec(ctx,
			`INSERT INTO character_guild (character, guild, rank) VALUES ($1, $2, $3) ON CONFLICT (character) DO UPDATE SET guild = EXCLUDED.guild, rank = EXCLUDED.rank`,
			m.Name, g.Name, int32(m.Rank),
		); err != nil {
			return fmt.Errorf("insert guild member %s: %w", m.Name, err)
		}
	}
	return nil
}

// Remove deletes the guild's info and membership rows and detaches the
// guild from online members, so their next save does not write it back. A
// cached guild object stays cached.
func (r *GuildRepo) Remove(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "GuildRepo.Remove", trace.WithAttributes(attribute.String("guild", name)))
	defer span.End()

	err := r.db.InTx(ctx, func(q Querier) error {
		if _, err := q.Exec(ctx, `DELETE FROM guild_info WHERE name = $1`, name); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `DELETE FROM character_guild WHERE guild = $1`, name)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("remove guild %s: %w", name, err)
	}
	detached := 0
	for _, p := range r.online.All() {
		if p.Guild != nil && p.Guild.Name == name {
			p.Guild = nil
			detached++
		}
	}
	r.log.Info("guild removed", zap.String("guild", name), zap.Int("detached", detached))
	event.Emit(r.bus, event.GuildRemoved{Name: name})
	return nil
}
