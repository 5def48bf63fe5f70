package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/l1jgo/worldstore/internal/core/event"
	"github.com/l1jgo/worldstore/internal/gametime"
	"github.com/l1jgo/worldstore/internal/world"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var characterColumns = []string{
	"name", "account", "class_name", "x", "y", "z", "level", "health", "mana",
	"strength", "intelligence", "experience", "skill_experience", "gold", "coins", "game_master",
}

var itemColumns = []string{"slot", "name", "amount", "durability", "summoned_health", "summoned_level", "summoned_experience"}

type repoFixture struct {
	repo   *CharacterRepo
	mock   pgxmock.PgxPoolIface
	bus    *event.Bus
	clock  *gametime.ManualClock
	online *world.Registry
}

func newRepoFixture(t *testing.T, log *zap.Logger) *repoFixture {
	t.Helper()
	if log == nil {
		log = zap.NewNop()
	}
	db, mock := newMockDB(t)
	bus := event.NewBus()
	online := world.NewRegistry()
	clock := gametime.NewManualClock(100 * time.Second)
	spawns := world.NewSpawnMap(
		[]world.Area{{MinX: 0, MinZ: 0, MaxX: 10, MaxZ: 10}},
		[]world.Position{{X: 1, Z: 1}, {X: 9, Z: 9}},
	)
	repo := NewCharacterRepo(CharacterDeps{
		DB:        db,
		Guilds:    NewGuildRepo(db, online, bus, log),
		Templates: testTemplates(),
		Spawns:    spawns,
		Starts:    spawns,
		Clock:     clock,
		Bus:       bus,
		Log:       log,
	})
	return &repoFixture{repo: repo, mock: mock, bus: bus, clock: clock, online: online}
}

func expectEmptyParts(mock pgxmock.PgxPoolIface, name string) {
	mock.ExpectQuery(sqlRe("FROM character_inventory WHERE character = $1")).WithArgs(name).
		WillReturnRows(pgxmock.NewRows(itemColumns))
	mock.ExpectQuery(sqlRe("FROM character_equipment WHERE character = $1")).WithArgs(name).
		WillReturnRows(pgxmock.NewRows(itemColumns))
	mock.ExpectQuery(sqlRe("FROM character_itemcooldowns WHERE character = $1")).WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"category", "remaining"}))
	mock.ExpectQuery(sqlRe("FROM character_skills WHERE character = $1")).WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"name", "level", "cast_remaining", "cooldown_remaining"}))
	mock.ExpectQuery(sqlRe("FROM character_buffs WHERE character = $1")).WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"name", "level", "remaining"}))
	mock.ExpectQuery(sqlRe("FROM character_quests WHERE character = $1")).WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"name", "progress", "completed"}))
	mock.ExpectQuery(sqlRe("SELECT guild FROM character_guild WHERE character = $1")).WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"guild"}))
}

// upsertArgs matches the 17 bound values of the character upsert.
func upsertArgs() []any {
	args := make([]any, 17)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// expectBareSave covers a player with no items, cooldowns, learned skills,
// buffs, quests or guild.
func expectBareSave(mock pgxmock.PgxPoolIface, name string) {
	mock.ExpectExec(sqlRe("INSERT INTO characters")).WithArgs(upsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for _, table := range []string{"character_inventory", "character_equipment", "character_itemcooldowns", "character_skills", "character_buffs", "character_quests"} {
		mock.ExpectExec(sqlRe("DELETE FROM "+table+" WHERE character = $1")).WithArgs(name).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
	}
}

func TestCharacterExists(t *testing.T) {
	f := newRepoFixture(t, nil)
	f.mock.ExpectQuery(sqlRe("SELECT EXISTS(SELECT 1 FROM characters WHERE name = $1)")).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := f.repo.Exists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCharacterDeleteUndelete(t *testing.T) {
	f := newRepoFixture(t, nil)
	f.mock.ExpectExec(sqlRe("UPDATE characters SET deleted = TRUE WHERE name = $1")).
		WithArgs("alice").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec(sqlRe("UPDATE characters SET deleted = FALSE WHERE name = $1")).
		WithArgs("alice").WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, f.repo.Delete(context.Background(), "alice"))
	require.NoError(t, f.repo.Undelete(context.Background(), "alice"))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListForAccount(t *testing.T) {
	f := newRepoFixture(t, nil)
	f.mock.ExpectQuery(sqlRe("SELECT name FROM characters WHERE account = $1 AND NOT deleted ORDER BY created_seq")).
		WithArgs("acct").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("zed").AddRow("alice"))

	names, err := f.repo.ListForAccount(context.Background(), "acct")
	require.NoError(t, err)
	assert.Equal(t, []string{"zed", "alice"}, names)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSetAllOffline(t *testing.T) {
	f := newRepoFixture(t, nil)
	f.mock.ExpectExec(sqlRe("UPDATE characters SET online = FALSE WHERE online")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := f.repo.SetAllOffline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestLoadMissingCharacter(t *testing.T) {
	f := newRepoFixture(t, nil)
	f.mock.ExpectQuery(sqlRe("FROM characters WHERE name = $1 AND NOT deleted")).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows(characterColumns))

	p, err := f.repo.Load(context.Background(), "ghost", testClasses(), false)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 0, f.bus.Pending())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLoadUnknownClass(t *testing.T) {
	log, logs := observedLogger()
	f := newRepoFixture(t, log)
	f.mock.ExpectQuery(sqlRe("FROM characters WHERE name = $1 AND NOT deleted")).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(characterColumns).AddRow(
			"alice", "acct", "Necromancer", 1.0, 0.0, 1.0, int32(3), int32(10), int32(10),
			int32(1), int32(1), int64(0), int64(0), int64(0), int64(0), false))

	p, err := f.repo.Load(context.Background(), "alice", testClasses(), false)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrUnknownClass)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLoadFullCharacter(t *testing.T) {
	f := newRepoFixture(t, nil)
	f.online.Add(&world.Player{Name: "bob", Level: 33})
	m := f.mock

	m.ExpectQuery(sqlRe("FROM characters WHERE name = $1 AND NOT deleted")).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(characterColumns).AddRow(
			"alice", "acct", "Mage", 5.0, 2.0, 5.0, int32(80), int32(9999), int32(40),
			int32(7), int32(12), int64(1000), int64(50), int64(300), int64(9), true))
	m.ExpectQuery(sqlRe("FROM character_inventory WHERE character = $1")).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(itemColumns).
			AddRow(int32(0), "Potion", int32(3), int32(0), int32(0), int32(0), int64(0)))
	m.ExpectQuery(sqlRe("FROM character_equipment WHERE character = $1")).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(itemColumns).
			AddRow(int32(0), "Sword", int32(1), int32(30), int32(0), int32(0), int64(0)).
			AddRow(int32(1), "Robe", int32(1), int32(20), int32(0), int32(0), int64(0)))
	m.ExpectQuery(sqlRe("FROM character_itemcooldowns WHERE character = $1")).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"category", "remaining"}).AddRow("potion", 12.5))
	m.ExpectQuery(sqlRe("FROM character_skills WHERE character = $1")).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"name", "level", "cast_remaining", "cooldown_remaining"}).
			AddRow("Fireball", int32(3), 0.0, 2.0))
	m.ExpectQuery(sqlRe("FROM character_buffs WHERE character = $1")).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"name", "level", "remaining"}).AddRow("Shield", int32(2), 30.0))
	m.ExpectQuery(sqlRe("FROM character_quests WHERE character = $1")).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"name", "progress", "completed"}).AddRow("Rats", int32(4), false))
	m.ExpectQuery(sqlRe("SELECT guild FROM character_guild WHERE character = $1")).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"guild"}).AddRow("Knights"))
	m.ExpectQuery(sqlRe("SELECT notice FROM guild_info WHERE name = $1")).WithArgs("Knights").
		WillReturnRows(pgxmock.NewRows([]string{"notice"}).AddRow("welcome"))
	m.ExpectQuery(sqlRe("SELECT character, rank FROM character_guild WHERE guild = $1")).WithArgs("Knights").
		WillReturnRows(pgxmock.NewRows([]string{"character", "rank"}).
			AddRow("alice", int32(2)).AddRow("bob", int32(0)).AddRow("carol", int32(1)))
	m.ExpectQuery(sqlRe("SELECT level FROM characters WHERE name = $1")).WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"level"}).AddRow(int32(80)))
	m.ExpectQuery(sqlRe("SELECT level FROM characters WHERE name = $1")).WithArgs("carol").
		WillReturnRows(pgxmock.NewRows([]string{"level"}))
	m.ExpectExec(sqlRe("UPDATE characters SET online = TRUE, last_saved = NOW() WHERE name = $1")).
		WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	p, err := f.repo.Load(context.Background(), "alice", testClasses(), false)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NoError(t, m.ExpectationsWereMet())

	assert.Equal(t, int32(50), p.Level, "level is clamped to the class maximum")
	assert.Equal(t, world.Position{X: 5, Y: 2, Z: 5}, p.Position)
	assert.True(t, p.GameMaster)
	assert.Equal(t, int64(9), p.Coins)

	assert.Equal(t, int32(3), p.Inventory[0].Amount)
	assert.True(t, p.Inventory[1].Empty())
	assert.Equal(t, "Sword", p.Equipment[0].Item.Name())
	assert.Equal(t, int32(30), p.Equipment[0].Item.Durability)

	assert.Equal(t, 112500*time.Millisecond, p.ItemCooldowns["potion"])
	assert.Equal(t, int32(3), p.Skills[0].Level)
	assert.Equal(t, 102*time.Second, p.Skills[0].CooldownEnd)
	assert.Zero(t, p.Skills[1].Level)
	require.Len(t, p.Buffs, 1)
	assert.Equal(t, 130*time.Second, p.Buffs[0].BuffTimeEnd)
	require.Len(t, p.Quests, 1)
	assert.Equal(t, int32(4), p.Quests[0].Progress)

	// 100 + 10*49 base, +10 sword, +5*2 shield buff.
	assert.Equal(t, int32(610), p.MaxHealth())
	assert.Equal(t, int32(610), p.Health)
	assert.Equal(t, int32(40), p.Mana)

	require.NotNil(t, p.Guild)
	assert.Equal(t, "welcome", p.Guild.Notice())
	alice, _ := p.Guild.Member("alice")
	assert.True(t, alice.Online)
	assert.Equal(t, int32(50), alice.Level)
	assert.Equal(t, world.GuildRankMaster, alice.Rank)
	bob, _ := p.Guild.Member("bob")
	assert.True(t, bob.Online)
	assert.Equal(t, int32(33), bob.Level)
	carol, _ := p.Guild.Member("carol")
	assert.False(t, carol.Online)
	assert.Equal(t, int32(1), carol.Level)

	cached, ok := f.repo.guilds.Cache().Get("Knights")
	assert.True(t, ok)
	assert.Same(t, p.Guild, cached)
	assert.Equal(t, 1, f.bus.Pending())
}

func TestLoadPreviewRelocatesInvalidPosition(t *testing.T) {
	f := newRepoFixture(t, nil)
	f.mock.ExpectQuery(sqlRe("FROM characters WHERE name = $1 AND NOT deleted")).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(characterColumns).AddRow(
			"alice", "acct", "Mage", 40.0, 0.0, 38.0, int32(1), int32(80), int32(10),
			int32(1), int32(1), int64(0), int64(0), int64(0), int64(0), false))
	expectEmptyParts(f.mock, "alice")

	p, err := f.repo.Load(context.Background(), "alice", testClasses(), true)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, world.Position{X: 9, Z: 9}, p.Position)
	assert.Equal(t, int32(80), p.Health)
	assert.Nil(t, p.Guild)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSaveWritesEveryTableInOneTransaction(t *testing.T) {
	f := newRepoFixture(t, nil)
	m := f.mock
	now := f.clock.Now()

	p := newTestPlayer("alice")
	p.Position = world.Position{X: 3, Y: 1, Z: 4}
	p.Gold = 120
	p.Inventory[2] = world.ItemSlot{Item: world.NewItem(potion), Amount: 4}
	p.ItemCooldowns["potion"] = now + 10*time.Second
	p.ItemCooldowns["scroll"] = now - time.Second
	p.Skills[0].Level = 2
	p.Quests = []world.Quest{{Template: rats, Progress: 10, Completed: true}}
	p.Guild = world.NewGuild("Knights", "hi", []world.GuildMember{{Name: "alice", Rank: world.GuildRankMaster}})

	m.ExpectBegin()
	m.ExpectExec(sqlRe("INSERT INTO characters (name, account, class_name")).
		WithArgs("alice", "acct", "Mage", 3.0, 1.0, 4.0, int32(1), int32(100), int32(50),
			int32(0), int32(0), int64(0), int64(0), int64(120), int64(0), false, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec(sqlRe("DELETE FROM character_inventory WHERE character = $1")).WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	m.ExpectExec(sqlRe("INSERT INTO character_inventory")).
		WithArgs("alice", int32(2), "Potion", int32(4), int32(0), int32(0), int32(0), int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec(sqlRe("DELETE FROM character_equipment WHERE character = $1")).WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	m.ExpectExec(sqlRe("DELETE FROM character_itemcooldowns WHERE character = $1")).WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	m.ExpectExec(sqlRe("INSERT INTO character_itemcooldowns")).
		WithArgs("alice", "potion", 10.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec(sqlRe("DELETE FROM character_skills WHERE character = $1")).WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	m.ExpectExec(sqlRe("INSERT INTO character_skills")).
		WithArgs("alice", "Fireball", int32(2), 0.0, 0.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec(sqlRe("DELETE FROM character_buffs WHERE character = $1")).WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	m.ExpectExec(sqlRe("DELETE FROM character_quests WHERE character = $1")).WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	m.ExpectExec(sqlRe("INSERT INTO character_quests")).
		WithArgs("alice", "Rats", int32(10), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec(sqlRe("INSERT INTO guild_info (name, notice)")).
		WithArgs("Knights", "hi").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec(sqlRe("DELETE FROM character_guild WHERE guild = $1")).WithArgs("Knights").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	m.ExpectExec(sqlRe("INSERT INTO character_guild (character, guild, rank)")).
		WithArgs("alice", "Knights", int32(2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectCommit()

	require.NoError(t, f.repo.Save(context.Background(), p, true))
	assert.NoError(t, m.ExpectationsWereMet())

	var guilds []string
	event.Subscribe(f.bus, func(e event.GuildSaved) { guilds = append(guilds, e.Guild.Name) })
	assert.Equal(t, 2, f.bus.Pending())
	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	assert.Equal(t, []string{"Knights"}, guilds)
}

func TestSavedGuildAnnouncedOncePerBatch(t *testing.T) {
	f := newRepoFixture(t, nil)
	knights := world.NewGuild("Knights", "", nil)
	alice, bob, carol := newTestPlayer("alice"), newTestPlayer("bob"), newTestPlayer("carol")
	alice.Guild, bob.Guild = knights, knights

	var characters, guilds []string
	event.Subscribe(f.bus, func(e event.CharacterSaved) { characters = append(characters, e.Player.Name) })
	event.Subscribe(f.bus, func(e event.GuildSaved) { guilds = append(guilds, e.Guild.Name) })

	f.repo.emitSaved([]*world.Player{alice, bob, carol}, true)
	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	assert.Equal(t, []string{"alice", "bob", "carol"}, characters)
	assert.Equal(t, []string{"Knights"}, guilds)
}

func TestSaveManyRollsBackOnFailure(t *testing.T) {
	f := newRepoFixture(t, nil)
	m := f.mock

	m.ExpectBegin()
	expectBareSave(m, "alice")
	m.ExpectExec(sqlRe("INSERT INTO characters")).WithArgs(upsertArgs()...).
		WillReturnError(errors.New("disk full"))
	m.ExpectRollback()

	err := f.repo.SaveMany(context.Background(), []*world.Player{newTestPlayer("alice"), newTestPlayer("bob")}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bob")
	assert.NoError(t, m.ExpectationsWereMet())
	assert.Equal(t, 0, f.bus.Pending(), "nothing is announced for a rolled back batch")
}

func TestSaveManyCommitsOnce(t *testing.T) {
	f := newRepoFixture(t, nil)
	m := f.mock

	m.ExpectBegin()
	expectBareSave(m, "alice")
	expectBareSave(m, "bob")
	m.ExpectCommit()

	require.NoError(t, f.repo.SaveMany(context.Background(), []*world.Player{newTestPlayer("alice"), newTestPlayer("bob")}, false))
	assert.NoError(t, m.ExpectationsWereMet())
	assert.Equal(t, 2, f.bus.Pending())
}

func TestSaveManyEmptyIsNoop(t *testing.T) {
	f := newRepoFixture(t, nil)
	require.NoError(t, f.repo.SaveMany(context.Background(), nil, true))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
