package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/l1jgo/worldstore/internal/persist"
	"github.com/l1jgo/worldstore/internal/world"
	"go.uber.org/zap"
)

var (
	ErrRejected      = errors.New("login rejected")
	ErrNotOwned      = errors.New("character not on account")
	ErrNotFound      = errors.New("character not found")
	ErrAlreadyOnline = errors.New("character already online")
)

// Accounts checks credentials. *persist.AccountRepo implements it.
type Accounts interface {
	Authenticate(ctx context.Context, name, password string) (bool, error)
}

// Characters is the slice of *persist.CharacterRepo the login flow needs.
type Characters interface {
	ListForAccount(ctx context.Context, account string) ([]string, error)
	Load(ctx context.Context, name string, classes persist.ClassRegistry, preview bool) (*world.Player, error)
	Save(ctx context.Context, p *world.Player, online bool) error
	SaveMany(ctx context.Context, players []*world.Player, online bool) error
}

// Crediter moves pending shop orders onto a player.
type Crediter interface {
	Credit(ctx context.Context, p *world.Player) (int64, error)
}

type Deps struct {
	Accounts   Accounts
	Characters Characters
	Orders     Crediter // optional
	Classes    persist.ClassRegistry
	Online     *world.Registry
	Log        *zap.Logger
}

// Manager moves characters between storage and the online registry.
type Manager struct {
	accounts Accounts
	chars    Characters
	orders   Crediter
	classes  persist.ClassRegistry
	online   *world.Registry
	log      *zap.Logger
}

func NewManager(deps Deps) *Manager {
	m := &Manager{
		accounts: deps.Accounts,
		chars:    deps.Characters,
		orders:   deps.Orders,
		classes:  deps.Classes,
		online:   deps.Online,
		log:      deps.Log,
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.online == nil {
		m.online = world.NewRegistry()
	}
	return m
}

// Login authenticates an account and returns its live character names in
// creation order. Account names are case-insensitive.
func (m *Manager) Login(ctx context.Context, account, password string) ([]string, error) {
	account = strings.ToLower(account)
	ok, err := m.accounts.Authenticate(ctx, account, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.log.Info("login rejected", zap.String("account", account))
		return nil, ErrRejected
	}
	names, err := m.chars.ListForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("list characters of %s: %w", account, err)
	}
	m.log.Info("account logged in",
		zap.String("account", account),
		zap.Int("characters", len(names)))
	return names, nil
}

// Enter loads one of the account's characters and registers it online.
// Pending shop orders are credited right away.
func (m *Manager) Enter(ctx context.Context, account, name string) (*world.Player, error) {
	account = strings.ToLower(account)
	if _, ok := m.online.Get(name); ok {
		return nil, ErrAlreadyOnline
	}
	names, err := m.chars.ListForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("list characters of %s: %w", account, err)
	}
	if !slices.Contains(names, name) {
		m.log.Warn("enter world: character not on account",
			zap.String("account", account),
			zap.String("character", name))
		return nil, ErrNotOwned
	}

	p, err := m.chars.Load(ctx, name, m.classes, false)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if m.orders != nil {
		if _, err := m.orders.Credit(ctx, p); err != nil {
			m.log.Error("credit orders failed", zap.String("character", name), zap.Error(err))
		}
	}
	m.online.Add(p)
	m.log.Info("character entered world",
		zap.String("account", account),
		zap.String("character", name),
		zap.Int32("level", p.Level))
	return p, nil
}

// Leave saves the character as offline and unregisters it. The character
// stays online when the save fails so the next autosave retries it.
func (m *Manager) Leave(ctx context.Context, name string) error {
	p, ok := m.online.Get(name)
	if !ok {
		return nil
	}
	if err := m.chars.Save(ctx, p, false); err != nil {
		return err
	}
	m.online.Remove(name)
	if p.Guild != nil {
		p.Guild.SetOnline(p.Name, false, p.Level)
	}
	m.log.Info("character left world", zap.String("character", name))
	return nil
}

// LeaveAll saves every online character as offline in one batch and empties
// the registry. Used on shutdown.
func (m *Manager) LeaveAll(ctx context.Context) error {
	players := m.online.All()
	if len(players) == 0 {
		return nil
	}
	if err := m.chars.SaveMany(ctx, players, false); err != nil {
		return err
	}
	for _, p := range players {
		m.online.Remove(p.Name)
		if p.Guild != nil {
			p.Guild.SetOnline(p.Name, false, p.Level)
		}
	}
	m.log.Info("all characters left world", zap.Int("count", len(players)))
	return nil
}

func (m *Manager) Online() int {
	return m.online.Count()
}
