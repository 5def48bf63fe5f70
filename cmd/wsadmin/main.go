// wsadmin inspects and edits stored characters, accounts and orders.
//
// Usage:
//
//	go run ./cmd/wsadmin <command> [-config path] args...
//
// Commands: list, show, status, delete, undelete, ban, unban, login, credit,
// guild, guild-notice, guild-remove
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/l1jgo/worldstore/internal/config"
	"github.com/l1jgo/worldstore/internal/data"
	"github.com/l1jgo/worldstore/internal/persist"
	"github.com/l1jgo/worldstore/internal/presence"
	"github.com/l1jgo/worldstore/internal/world"
	"go.uber.org/zap"
)

type admin struct {
	accounts *persist.AccountRepo
	chars    *persist.CharacterRepo
	guilds   *persist.GuildRepo
	orders   *persist.OrderRepo
	classes  persist.ClassRegistry
	presence *presence.Publisher // nil when no redis is configured
	out      io.Writer
}

type command struct {
	args  int
	usage string
	run   func(a *admin, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"list":     {1, "list <account>            List live characters of an account", (*admin).list},
	"show":     {1, "show <character>          Print a stored character", (*admin).show},
	"status":   {1, "status <character>        Print the published presence status", (*admin).status},
	"delete":   {1, "delete <character>        Soft-delete a character", (*admin).delete},
	"undelete": {1, "undelete <character>      Restore a soft-deleted character", (*admin).undelete},
	"ban":      {1, "ban <account>             Ban an account", (*admin).ban},
	"unban":    {1, "unban <account>           Lift a ban", (*admin).unban},
	"login":    {2, "login <account> <pass>    Check credentials (creates unknown accounts)", (*admin).login},
	"credit":   {2, "credit <character> <n>    Queue a coin order for a character", (*admin).credit},
	"guild":    {1, "guild <name>              Print a stored guild and its members", (*admin).guild},

	"guild-notice": {2, "guild-notice <name> <text> Replace a guild's notice", (*admin).guildNotice},
	"guild-remove": {1, "guild-remove <name>       Delete a guild and its membership", (*admin).guildRemove},
}

func printUsage() {
	fmt.Println("Usage: wsadmin <command> [-config path] args...")
	fmt.Println()
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println("  " + commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath := fs.String("config", "config/worldstore.toml", "config file")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != cmd.args {
		fmt.Fprintf(os.Stderr, "usage: wsadmin %s\n", cmd.usage)
		os.Exit(1)
	}

	if err := execute(*cfgPath, cmd, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func execute(cfgPath string, cmd command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := zap.NewNop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := newAdmin(db, cfg.Data, log)
	if err != nil {
		return err
	}
	if cfg.Presence.Addr != "" {
		rdb, err := presence.NewClient(cfg.Presence)
		if err != nil {
			return err
		}
		defer rdb.Close()
		a.presence = presence.NewPublisher(rdb, cfg.Presence.TTL, log)
	}
	return cmd.run(a, ctx, args)
}

func newAdmin(db *persist.DB, paths config.DataConfig, log *zap.Logger) (*admin, error) {
	items, err := data.LoadItemTable(paths.ItemsPath)
	if err != nil {
		return nil, err
	}
	skills, err := data.LoadSkillTable(paths.SkillsPath)
	if err != nil {
		return nil, err
	}
	quests, err := data.LoadQuestTable(paths.QuestsPath)
	if err != nil {
		return nil, err
	}
	classes, err := data.LoadClassTable(paths.ClassesPath)
	if err != nil {
		return nil, err
	}
	return buildAdmin(db, persist.Templates{Items: items, Skills: skills, Quests: quests}, classes, os.Stdout, log), nil
}

func buildAdmin(db *persist.DB, tmpl persist.Templates, classes persist.ClassRegistry, out io.Writer, log *zap.Logger) *admin {
	guilds := persist.NewGuildRepo(db, nil, nil, log)
	return &admin{
		accounts: persist.NewAccountRepo(db, nil, log),
		chars: persist.NewCharacterRepo(persist.CharacterDeps{
			DB:        db,
			Guilds:    guilds,
			Templates: tmpl,
			Log:       log,
		}),
		guilds:  guilds,
		orders:  persist.NewOrderRepo(db, log),
		classes: classes,
		out:     out,
	}
}

func (a *admin) list(ctx context.Context, args []string) error {
	names, err := a.chars.ListForAccount(ctx, args[0])
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(a.out, n)
	}
	return nil
}

func (a *admin) show(ctx context.Context, args []string) error {
	p, err := a.chars.Load(ctx, args[0], a.classes, true)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("character %s not found", args[0])
	}
	printPlayer(a.out, p)
	if a.presence != nil {
		status, err := a.presence.Status(ctx, p.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "  presence  %s\n", status)
	}
	return nil
}

func (a *admin) status(ctx context.Context, args []string) error {
	if a.presence == nil {
		return fmt.Errorf("presence is not configured")
	}
	status, err := a.presence.Status(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, status)
	return nil
}

func printPlayer(w io.Writer, p *world.Player) {
	fmt.Fprintf(w, "%s (%s) account=%s level=%d\n", p.Name, p.ClassName, p.Account, p.Level)
	fmt.Fprintf(w, "  position  %.1f %.1f %.1f\n", p.Position.X, p.Position.Y, p.Position.Z)
	fmt.Fprintf(w, "  health    %d/%d  mana %d/%d\n", p.Health, p.MaxHealth(), p.Mana, p.MaxMana())
	fmt.Fprintf(w, "  gold      %d  coins %d\n", p.Gold, p.Coins)
	fmt.Fprintf(w, "  inventory %d/%d  equipment %d/%d\n",
		world.CountFilled(p.Inventory), len(p.Inventory),
		world.CountFilled(p.Equipment), len(p.Equipment))
	learned := 0
	for _, s := range p.Skills {
		if s.Level > 0 {
			learned++
		}
	}
	fmt.Fprintf(w, "  skills    %d  buffs %d  quests %d\n", learned, len(p.Buffs), len(p.Quests))
	if p.Guild != nil {
		m, _ := p.Guild.Member(p.Name)
		fmt.Fprintf(w, "  guild     %s (%s)\n", p.Guild.Name, m.Rank)
	}
}

func (a *admin) delete(ctx context.Context, args []string) error {
	return a.chars.Delete(ctx, args[0])
}

func (a *admin) undelete(ctx context.Context, args []string) error {
	return a.chars.Undelete(ctx, args[0])
}

func (a *admin) ban(ctx context.Context, args []string) error {
	return a.accounts.SetBanned(ctx, args[0], true)
}

func (a *admin) unban(ctx context.Context, args []string) error {
	return a.accounts.SetBanned(ctx, args[0], false)
}

func (a *admin) login(ctx context.Context, args []string) error {
	ok, err := a.accounts.Authenticate(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(a.out, "ok")
	} else {
		fmt.Fprintln(a.out, "rejected")
	}
	return nil
}

func (a *admin) credit(ctx context.Context, args []string) error {
	coins, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || coins <= 0 {
		return fmt.Errorf("coins must be a positive integer, got %q", args[1])
	}
	exists, err := a.chars.Exists(ctx, args[0])
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("character %s not found", args[0])
	}
	if _, err := a.orders.Enqueue(ctx, persist.OrderRow{Character: args[0], Coins: coins}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "queued %d coins for %s\n", coins, args[0])
	return nil
}

func (a *admin) guild(ctx context.Context, args []string) error {
	g, err := a.loadGuild(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (%d members)\n", g.Name, g.MemberCount())
	if notice := g.Notice(); notice != "" {
		fmt.Fprintf(a.out, "  notice    %s\n", notice)
	}
	for _, m := range g.Members() {
		fmt.Fprintf(a.out, "  %-12s %-7s level %d\n", m.Name, m.Rank, m.Level)
	}
	return nil
}

func (a *admin) guildNotice(ctx context.Context, args []string) error {
	g, err := a.loadGuild(ctx, args[0])
	if err != nil {
		return err
	}
	g.SetNotice(args[1])
	return a.guilds.Save(ctx, g)
}

func (a *admin) guildRemove(ctx context.Context, args []string) error {
	exists, err := a.guilds.Exists(ctx, args[0])
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("guild %s not found", args[0])
	}
	return a.guilds.Remove(ctx, args[0])
}

func (a *admin) loadGuild(ctx context.Context, name string) (*world.Guild, error) {
	g, err := a.guilds.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("guild %s not found", name)
	}
	return g, nil
}
