package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// ErrThrottled is returned by Authenticate when a name exceeds its login
// attempt budget.
var ErrThrottled = errors.New("login attempts throttled")

type AccountRow struct {
	Name      string
	Password  string
	CreatedAt time.Time
	LastLogin time.Time
	Banned    bool
}

// CredentialCodec turns a raw password into its stored form and compares a
// login attempt against it.
type CredentialCodec interface {
	Encode(raw string) (string, error)
	Match(stored, raw string) bool
}

// PlainCodec stores the credential as given and compares by equality.
type PlainCodec struct{}

func (PlainCodec) Encode(raw string) (string, error) { return raw, nil }
func (PlainCodec) Match(stored, raw string) bool     { return stored == raw }

// BcryptCodec stores bcrypt hashes.
type BcryptCodec struct {
	Cost int
}

func (c BcryptCodec) Encode(raw string) (string, error) {
	cost := c.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptCodec) Match(stored, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(raw)) == nil
}

type AccountRepo struct {
	db    *DB
	codec CredentialCodec
	log   *zap.Logger

	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewAccountRepo(db *DB, codec CredentialCodec, log *zap.Logger) *AccountRepo {
	if codec == nil {
		codec = PlainCodec{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountRepo{db: db, codec: codec, log: log}
}

// SetLoginLimit enables a per-name throttle of attemptsPerMinute login
// attempts. Zero or less disables it.
func (r *AccountRepo) SetLoginLimit(attemptsPerMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters = nil
	if attemptsPerMinute <= 0 {
		r.limit = 0
		return
	}
	r.limit = rate.Every(time.Minute / time.Duration(attemptsPerMinute))
	r.burst = attemptsPerMinute
	r.limiters = make(map[string]*rate.Limiter)
}

func (r *AccountRepo) allow(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limiters == nil {
		return true
	}
	l, ok := r.limiters[name]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[name] = l
	}
	return l.Allow()
}

// Authenticate validates a login, creating the account on first sight of
// an unknown name. Blank names or passwords fail without touching storage.
func (r *AccountRepo) Authenticate(ctx context.Context, name, password string) (bool, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(password) == "" {
		return false, nil
	}
	if !r.allow(name) {
		r.log.Warn("login throttled", zap.String("account", name))
		return false, ErrThrottled
	}

	stored, banned, err := r.credential(ctx, name)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.create(ctx, name, password)
	}
	if err != nil {
		return false, fmt.Errorf("load account %s: %w", name, err)
	}
	return r.check(ctx, name, password, stored, banned)
}

func (r *AccountRepo) credential(ctx context.Context, name string) (stored string, banned bool, err error) {
	err = r.db.Pool.QueryRow(ctx,
		`SELECT password, banned FROM accounts WHERE name = $1`, name,
	).Scan(&stored, &banned)
	return stored, banned, err
}

func (r *AccountRepo) check(ctx context.Context, name, password, stored string, banned bool) (bool, error) {
	if banned || !r.codec.Match(stored, password) {
		return false, nil
	}
	if _, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET last_login = NOW() WHERE name = $1`, name,
	); err != nil {
		return false, fmt.Errorf("update last login %s: %w", name, err)
	}
	return true, nil
}

// create inserts a new account. When a concurrent login created the same
// name first, the credential is checked against that row instead.
func (r *AccountRepo) create(ctx context.Context, name, password string) (bool, error) {
	encoded, err := r.codec.Encode(password)
	if err != nil {
		return false, fmt.Errorf("encode credential: %w", err)
	}
	tag, err := r.db.Pool.Exec(ctx,
		`INSERT INTO accounts (name, password, created_at, last_login, banned) VALUES ($1, $2, NOW(), NOW(), FALSE) ON CONFLICT (name) DO NOTHING`,
		name, encoded,
	)
	if err != nil {
		return false, fmt.Errorf("create account %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		stored, banned, err := r.credential(ctx, name)
		if err != nil {
			return false, fmt.Errorf("load account %s: %w", name, err)
		}
		return r.check(ctx, name, password, stored, banned)
	}
	r.log.Info("account created", zap.String("account", name))
	return true, nil
}

func (r *AccountRepo) Load(ctx context.Context, name string) (*AccountRow, error) {
	row := &AccountRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT name, password, created_at, last_login, banned FROM accounts WHERE name = $1`, name,
	).Scan(&row.Name, &row.Password, &row.CreatedAt, &row.LastLogin, &row.Banned)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *AccountRepo) SetBanned(ctx context.Context, name string, banned bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET banned = $2 WHERE name = $1`,
		name, banned,
	)
	return err
}
