package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/worldstore/internal/config"
	"github.com/l1jgo/worldstore/internal/core/event"
	coresys "github.com/l1jgo/worldstore/internal/core/system"
	"github.com/l1jgo/worldstore/internal/data"
	"github.com/l1jgo/worldstore/internal/gametime"
	"github.com/l1jgo/worldstore/internal/mall"
	"github.com/l1jgo/worldstore/internal/persist"
	"github.com/l1jgo/worldstore/internal/presence"
	"github.com/l1jgo/worldstore/internal/scripting"
	"github.com/l1jgo/worldstore/internal/session"
	"github.com/l1jgo/worldstore/internal/system"
	"github.com/l1jgo/worldstore/internal/tracing"
	"github.com/l1jgo/worldstore/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/worldstore.toml"
	if p := os.Getenv("WORLDSTORE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger and tracing
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("\n  \033[36;1m%s\033[0m\n\n", cfg.Server.Name)

	// 3. Connect to PostgreSQL and run migrations
	printSection("Database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL connected")

	version, err := persist.RunMigrations(ctx, db.Raw(), log)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK(fmt.Sprintf("schema at version %d", version))

	// 4. Load templates
	printSection("Templates")

	items, err := data.LoadItemTable(cfg.Data.ItemsPath)
	if err != nil {
		return fmt.Errorf("load item table: %w", err)
	}
	printStat("items", items.Count())

	skills, err := data.LoadSkillTable(cfg.Data.SkillsPath)
	if err != nil {
		return fmt.Errorf("load skill table: %w", err)
	}
	printStat("skills", skills.Count())

	quests, err := data.LoadQuestTable(cfg.Data.QuestsPath)
	if err != nil {
		return fmt.Errorf("load quest table: %w", err)
	}
	printStat("quests", quests.Count())

	classes, err := data.LoadClassTable(cfg.Data.ClassesPath)
	if err != nil {
		return fmt.Errorf("load class table: %w", err)
	}
	printStat("classes", classes.Count())

	spawns, err := world.LoadSpawnMap(cfg.Data.SpawnMapPath)
	if err != nil {
		return fmt.Errorf("load spawn map: %w", err)
	}

	// 5. Hooks
	bus := event.NewBus()
	online := world.NewRegistry()

	hooks, err := scripting.NewEngine(cfg.Data.HooksDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer hooks.Close()
	hooks.Subscribe(bus)

	if cfg.Presence.Addr != "" {
		rdb, err := presence.NewClient(cfg.Presence)
		if err != nil {
			return fmt.Errorf("presence: %w", err)
		}
		defer rdb.Close()
		presence.NewPublisher(rdb, cfg.Presence.TTL, log).Subscribe(bus)
		printOK("presence publishing to " + cfg.Presence.Addr)
	}

	// 6. Repositories
	var codec persist.CredentialCodec = persist.PlainCodec{}
	if cfg.Account.HashPasswords {
		codec = persist.BcryptCodec{Cost: cfg.Account.BcryptCost}
	}
	accounts := persist.NewAccountRepo(db, codec, log)
	if cfg.RateLimit.Enabled {
		accounts.SetLoginLimit(cfg.RateLimit.LoginAttemptsPerMinute)
	}
	guilds := persist.NewGuildRepo(db, online, bus, log)
	chars := persist.NewCharacterRepo(persist.CharacterDeps{
		DB:     db,
		Guilds: guilds,
		Templates: persist.Templates{
			Items:  items,
			Skills: skills,
			Quests: quests,
		},
		Spawns: spawns,
		Starts: spawns,
		Clock:  gametime.NewServerClock(),
		Bus:    bus,
		Log:    log,
	})
	orders := persist.NewOrderRepo(db, log)
	sessions := session.NewManager(session.Deps{
		Accounts:   accounts,
		Characters: chars,
		Orders:     orders,
		Classes:    classes,
		Online:     online,
		Log:        log,
	})

	stale, err := chars.SetAllOffline(ctx)
	if err != nil {
		return err
	}
	if stale > 0 {
		log.Warn("cleared stale online flags", zap.Int64("characters", stale))
	}

	event.Publish(bus, event.Connected{})

	// 7. Mall order ingest
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	if len(cfg.Mall.Brokers) > 0 {
		consumer, err := mall.NewConsumer(cfg.Mall, orders, log)
		if err != nil {
			return fmt.Errorf("mall consumer: %w", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(runCtx); err != nil {
				log.Error("mall consumer stopped", zap.Error(err))
			}
		}()
		printOK("consuming purchases from " + cfg.Mall.Topic)
	}

	// 8. Systems
	runner := coresys.NewRunner(log)
	runner.Register(system.NewDispatchSystem(bus))
	autosaveTicks := int(cfg.Server.AutosaveInterval / cfg.Server.TickRate)
	autosave := system.NewPersistenceSystem(online, chars, orders, log, autosaveTicks)
	runner.Register(autosave)

	// 9. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Server.TickRate)
	defer ticker.Stop()

	log.Info("worldstore ready",
		zap.Duration("tick", cfg.Server.TickRate),
		zap.Duration("autosave", cfg.Server.AutosaveInterval))

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Server.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			stop()
			saveCtx, cancelSave := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancelSave()
			if err := sessions.LeaveAll(saveCtx); err != nil {
				log.Error("final save failed", zap.Error(err))
			}
			// Deliver the final save notifications before exiting.
			bus.SwapBuffers()
			bus.DispatchAll()
			log.Info("worldstore stopped")
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
